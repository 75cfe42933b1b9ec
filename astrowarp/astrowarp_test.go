package astrowarp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/glkvm/kvmapi/internal/sysexec"
	"github.com/google/go-cmp/cmp"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeRunner struct {
	calls [][]string
	err   error
}

func (r *fakeRunner) Run(ctx context.Context, argv []string) (string, error) {
	r.calls = append(r.calls, argv)
	return "", r.err
}

type testEnv struct {
	cfg    Config
	runner *fakeRunner
	svc    *Service
}

func newTestEnv(t *testing.T) *testEnv {
	dir := t.TempDir()
	cfg := Config{
		ConfigPath:    filepath.Join(dir, "gl-cloud.conf"),
		StatusPath:    filepath.Join(dir, "bindinfo"),
		InitScript:    "/etc/init.d/S99gl-cloud",
		UnbindCommand: "ubus call gl-cloud unbind",
		Hardware: HardwarePaths{
			MAC:    filepath.Join(dir, "device_mac"),
			Serial: filepath.Join(dir, "device_sn"),
			DDNS:   filepath.Join(dir, "device_ddns"),
		},
	}
	runner := &fakeRunner{}
	return &testEnv{
		cfg:    cfg,
		runner: runner,
		svc:    NewService(cfg, runner, discardLogger),
	}
}

func writeFile(t *testing.T, path, body string) {
	assert.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name   string
		status string // empty means no status file
		bound  bool
	}{
		{"bound", `{"bindtime":"1700000000","email":"a@b.c","username":"alice","extra":1}`, true},
		{"bound with surrounding whitespace", "\n {\"bindtime\":\"1\",\"email\":\"x\",\"username\":\"y\"} \n", true},
		{"no status file", "", false},
		{"malformed", `{"bindtime":`, false},
		{"not an object", `["bindtime"]`, false},
		{"null document", `null`, false},
		{"empty bindtime", `{"bindtime":"","email":"x","username":"y"}`, false},
		{"missing email", `{"bindtime":"1","username":"y"}`, false},
		{"empty username", `{"bindtime":"1","email":"x","username":""}`, false},
		{"null username", `{"bindtime":"1","email":"x","username":null}`, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			env := newTestEnv(t)
			writeFile(t, env.cfg.ConfigPath, `{"enable": true}`)
			if test.status != "" {
				writeFile(t, env.cfg.StatusPath, test.status)
			}

			status, err := env.svc.Status(context.Background())
			assert.NoError(t, err)
			assert.True(t, status.Enabled)
			assert.Equal(t, test.bound, status.Bound())
		})
	}
}

func TestStatusKeepsWholeDocument(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.cfg.ConfigPath, `{"enable": false}`)
	writeFile(t, env.cfg.StatusPath, `{"bindtime":"1","email":"x","username":"y","region":"eu"}`)

	status, err := env.svc.Status(context.Background())
	assert.NoError(t, err)
	assert.False(t, status.Enabled)

	want := map[string]any{"bindtime": "1", "email": "x", "username": "y", "region": "eu"}
	if diff := cmp.Diff(want, status.Binding); diff != "" {
		t.Errorf("unexpected binding (-want +got):\n%s", diff)
	}
}

func TestStatusConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		config string // empty means no config file
	}{
		{"missing config", ""},
		{"malformed config", `{"enable": `},
		{"no enable key", `{"other": 1}`},
		{"enable not a bool", `{"enable": "yes"}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			env := newTestEnv(t)
			if test.config != "" {
				writeFile(t, env.cfg.ConfigPath, test.config)
			}
			writeFile(t, env.cfg.StatusPath, `{"bindtime":"1","email":"x","username":"y"}`)

			_, err := env.svc.Status(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestShow(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.cfg.Hardware.MAC, "94:83:c4:00:11:22\n")
	writeFile(t, env.cfg.Hardware.Serial, "SN123\n")
	writeFile(t, env.cfg.Hardware.DDNS, "abc123.glddns.com\n")

	id, err := env.svc.Show(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "94:83:c4:00:11:22,SN123,abc123.glddns.com", id.String())
}

func TestShowMissingFile(t *testing.T) {
	for _, missing := range []string{"mac", "sn", "ddns"} {
		t.Run(missing, func(t *testing.T) {
			env := newTestEnv(t)
			files := map[string]string{
				"mac":  env.cfg.Hardware.MAC,
				"sn":   env.cfg.Hardware.Serial,
				"ddns": env.cfg.Hardware.DDNS,
			}
			for name, path := range files {
				if name != missing {
					writeFile(t, path, name)
				}
			}

			_, err := env.svc.Show(context.Background())
			assert.True(t, errors.Is(err, os.ErrNotExist), "got %v", err)
		})
	}
}

func TestSetEnabled(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.cfg.ConfigPath, `{"enable": false, "server": "https://cloud.example.com/some/long/path"}`)

	assert.NoError(t, env.svc.SetEnabled(context.Background(), true))
	assert.Equal(t, [][]string{{"/etc/init.d/S99gl-cloud", "restart"}}, env.runner.calls)

	// The rewrite is shorter than the original; no trailing garbage may stay.
	var doc map[string]any
	b, err := os.ReadFile(env.cfg.ConfigPath)
	assert.NoError(t, err)
	assert.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, map[string]any{
		"enable": true,
		"server": "https://cloud.example.com/some/long/path",
	}, doc)

	assert.NoError(t, env.svc.SetEnabled(context.Background(), false))
	assert.Equal(t, []string{"/etc/init.d/S99gl-cloud", "stop"}, env.runner.calls[1])

	b, err = os.ReadFile(env.cfg.ConfigPath)
	assert.NoError(t, err)
	assert.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, any(false), doc["enable"])

	status, err := env.svc.Status(context.Background())
	assert.NoError(t, err)
	assert.False(t, status.Enabled)
}

func TestSetEnabledIgnoresServiceFailure(t *testing.T) {
	env := newTestEnv(t)
	env.runner.err = &sysexec.ExitError{Argv: []string{"init"}, Code: 1}
	writeFile(t, env.cfg.ConfigPath, `{"enable": false}`)

	assert.NoError(t, env.svc.SetEnabled(context.Background(), true))

	status, err := env.svc.Status(context.Background())
	assert.NoError(t, err)
	assert.True(t, status.Enabled)
}

func TestSetEnabledConfigErrors(t *testing.T) {
	env := newTestEnv(t)
	assert.Error(t, env.svc.SetEnabled(context.Background(), true))

	writeFile(t, env.cfg.ConfigPath, `not json`)
	assert.Error(t, env.svc.SetEnabled(context.Background(), true))

	assert.Equal(t, 0, len(env.runner.calls), "service must not be touched")
}

func TestUnbind(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, env.svc.Unbind(context.Background()))
	assert.Equal(t, [][]string{{"ubus", "call", "gl-cloud", "unbind"}}, env.runner.calls)

	exitErr := &sysexec.ExitError{Argv: []string{"ubus"}, Code: 4, Stderr: "Command failed"}
	env.runner.err = exitErr
	err := env.svc.Unbind(context.Background())
	assert.IsError(t, err, exitErr)

	env.runner.err = errors.New("executable file not found")
	assert.Error(t, env.svc.Unbind(context.Background()))
}

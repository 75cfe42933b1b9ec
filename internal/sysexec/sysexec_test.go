package sysexec

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestCommandArgv(t *testing.T) {
	tests := []struct {
		name    string
		command Command
		argv    []string
		wantErr bool
	}{
		{"plain", "ubus call gl-cloud unbind", []string{"ubus", "call", "gl-cloud", "unbind"}, false},
		{"path", "/etc/init.d/S99gl-cloud", []string{"/etc/init.d/S99gl-cloud"}, false},
		{"quoted", `ubus call gl-cloud "set config" '{"a": 1}'`, []string{"ubus", "call", "gl-cloud", "set config", `{"a": 1}`}, false},
		{"extra spaces", "  sync   ", []string{"sync"}, false},
		{"empty", "", nil, true},
		{"unterminated", `ubus "call`, nil, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			argv, err := test.command.Argv()
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, test.argv, argv)
		})
	}
}

func TestCommandWith(t *testing.T) {
	argv, err := Command("/etc/init.d/S99gl-cloud").With("restart")
	assert.NoError(t, err)
	assert.Equal(t, []string{"/etc/init.d/S99gl-cloud", "restart"}, argv)
}

func TestExecRunner(t *testing.T) {
	ctx := context.Background()
	runner := NewExecRunner(discardLogger)

	out, err := runner.Run(ctx, []string{"sh", "-c", "echo ' hello '"})
	assert.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, err = runner.Run(ctx, []string{"sh", "-c", "echo oops >&2; exit 3"})
	var exitErr *ExitError
	assert.True(t, errors.As(err, &exitErr), "error should be an ExitError")
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "oops", exitErr.Stderr)

	_, err = runner.Run(ctx, []string{"/nonexistent/kvmapi-test-binary"})
	assert.Error(t, err)
	assert.False(t, errors.As(err, &exitErr), "missing binary is not an exit error")

	_, err = runner.Run(ctx, nil)
	assert.Error(t, err)
}

type recordingRunner struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (r *recordingRunner) Run(ctx context.Context, argv []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, argv)
	return "", r.err
}

func (r *recordingRunner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func TestRebooterWaitsForContext(t *testing.T) {
	runner := &recordingRunner{}
	rebooter := NewRebooter(runner, "sync", "reboot -f", 10*time.Millisecond, discardLogger)

	ctx, cancel := context.WithCancel(context.Background())
	done := rebooter.ScheduleAfter(ctx)
	assert.NotZero(t, done)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, len(runner.Calls()), "nothing may run before the context ends")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reboot sequence did not finish")
	}

	assert.Equal(t, [][]string{{"sync"}, {"reboot", "-f"}}, runner.Calls())
}

func TestRebooterSinglePending(t *testing.T) {
	runner := &recordingRunner{err: errors.New("sync failed")}
	rebooter := NewRebooter(runner, "sync", "reboot", 0, discardLogger)

	ctx, cancel := context.WithCancel(context.Background())
	first := rebooter.ScheduleAfter(ctx)
	assert.NotZero(t, first)
	assert.Zero(t, rebooter.ScheduleAfter(ctx))

	cancel()
	<-first

	// A failing sync does not stop the reboot.
	assert.Equal(t, [][]string{{"sync"}, {"reboot"}}, runner.Calls())

	// Once finished, another sequence may be scheduled.
	second := rebooter.ScheduleAfter(ctx)
	assert.NotZero(t, second)
	<-second
}

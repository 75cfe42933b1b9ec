// Package astrowarp reports and toggles the Astrowarp cloud binding of the
// device. Binding itself is done by the gl-cloud service; this package only
// reads its state files, flips its enable flag and asks it to unbind.
package astrowarp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/glkvm/kvmapi/internal/sysexec"
)

// Config holds the files and commands used to talk to the gl-cloud service.
type Config struct {
	// ConfigPath is the JSON document holding the enable flag.
	ConfigPath string `toml:"config_path" json:"config_path" yaml:"config_path"`
	// StatusPath is the JSON document the service writes once bound.
	StatusPath string `toml:"status_path" json:"status_path" yaml:"status_path"`
	// InitScript controls the service. It is called with "restart" or "stop".
	InitScript sysexec.Command `toml:"init_script" json:"init_script" yaml:"init_script"`
	// UnbindCommand unbinds the device from its cloud account.
	UnbindCommand sysexec.Command `toml:"unbind_command" json:"unbind_command" yaml:"unbind_command"`
	Hardware      HardwarePaths   `toml:"hardware" json:"hardware" yaml:"hardware"`
}

// HardwarePaths are the platform files exposing the device identity.
type HardwarePaths struct {
	MAC    string `toml:"mac_path" json:"mac_path" yaml:"mac_path"`
	Serial string `toml:"sn_path" json:"sn_path" yaml:"sn_path"`
	DDNS   string `toml:"ddns_path" json:"ddns_path" yaml:"ddns_path"`
}

// DefaultConfig returns the paths and commands of a stock device.
func DefaultConfig() Config {
	return Config{
		ConfigPath:    "/etc/glinet/gl-cloud.conf",
		StatusPath:    "/var/run/cloud/bindinfo",
		InitScript:    "/etc/init.d/S99gl-cloud",
		UnbindCommand: "ubus call gl-cloud unbind",
		Hardware: HardwarePaths{
			MAC:    "/proc/gl-hw-info/device_mac",
			Serial: "/proc/gl-hw-info/device_sn",
			DDNS:   "/proc/gl-hw-info/device_ddns",
		},
	}
}

// Status is the result of a status query.
type Status struct {
	// Enabled is the enable flag from the binding config.
	Enabled bool
	// Binding is the full status document if the device is bound, or nil.
	Binding map[string]any
}

// Bound returns true if the device is bound to a cloud account.
func (s Status) Bound() bool { return s.Binding != nil }

// HardwareIdentity is the identity the cloud uses to find the device.
type HardwareIdentity struct {
	MAC    string
	Serial string
	DDNS   string
}

// String joins the identity as "mac,sn,ddns".
func (h HardwareIdentity) String() string {
	return h.MAC + "," + h.Serial + "," + h.DDNS
}

// ErrInvalidStatus is returned when the status document is missing, broken
// or lacks one of the required binding fields.
var ErrInvalidStatus = errors.New("invalid binding status")

// requiredStatusFields must be present and non-empty for a binding to count.
var requiredStatusFields = []string{"bindtime", "email", "username"}

// Service reads and changes the binding state.
type Service struct {
	cfg    Config
	runner sysexec.Runner
	logger *slog.Logger
}

// NewService creates a new Service.
func NewService(cfg Config, runner sysexec.Runner, logger *slog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		runner: runner,
		logger: logger,
	}
}

// Status returns the enable flag and, if bound, the binding status. An
// unreadable binding config is an error; an unusable status document only
// means the device is not bound.
func (s *Service) Status(ctx context.Context) (Status, error) {
	enabled, err := s.readEnabled()
	if err != nil {
		return Status{}, err
	}

	binding, err := s.readBinding()
	if err != nil {
		s.logger.Debug(
			"device is not bound",
			"path", s.cfg.StatusPath,
			"err", err)
		return Status{Enabled: enabled}, nil
	}

	return Status{Enabled: enabled, Binding: binding}, nil
}

func (s *Service) readEnabled() (bool, error) {
	doc, err := readConfigDocument(s.cfg.ConfigPath)
	if err != nil {
		return false, err
	}

	raw, ok := doc["enable"]
	if !ok {
		return false, fmt.Errorf("binding config %s has no enable key", s.cfg.ConfigPath)
	}

	var enabled bool
	if err := json.Unmarshal(raw, &enabled); err != nil {
		return false, fmt.Errorf("binding config %s: invalid enable value: %w", s.cfg.ConfigPath, err)
	}

	return enabled, nil
}

func (s *Service) readBinding() (map[string]any, error) {
	b, err := os.ReadFile(s.cfg.StatusPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStatus, err)
	}

	var status map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(b))), &status); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStatus, err)
	}

	for _, field := range requiredStatusFields {
		v, ok := status[field]
		if !ok || v == nil || v == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrInvalidStatus, field)
		}
	}

	return status, nil
}

// Show reads the hardware identity of the device.
func (s *Service) Show(ctx context.Context) (HardwareIdentity, error) {
	var id HardwareIdentity
	var err error

	if id.MAC, err = readLine(s.cfg.Hardware.MAC); err != nil {
		return HardwareIdentity{}, err
	}
	if id.Serial, err = readLine(s.cfg.Hardware.Serial); err != nil {
		return HardwareIdentity{}, err
	}
	if id.DDNS, err = readLine(s.cfg.Hardware.DDNS); err != nil {
		return HardwareIdentity{}, err
	}

	return id, nil
}

func readLine(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// SetEnabled writes the enable flag into the binding config, keeping every
// other key, then restarts or stops the service. The service command is
// best-effort: its failure is logged, not returned.
func (s *Service) SetEnabled(ctx context.Context, enabled bool) error {
	if err := s.writeEnabled(enabled); err != nil {
		return err
	}

	action := "stop"
	if enabled {
		action = "restart"
	}

	argv, err := s.cfg.InitScript.With(action)
	if err != nil {
		s.logger.Error(
			"invalid init script command",
			"command", string(s.cfg.InitScript),
			"err", err)
		return nil
	}

	// A client going away must not leave the service half-restarted.
	if _, err := s.runner.Run(context.WithoutCancel(ctx), argv); err != nil {
		s.logger.Warn(
			"cloud service control failed",
			"argv", argv,
			"err", err)
	}

	return nil
}

// writeEnabled rewrites the binding config in place.
func (s *Service) writeEnabled(enabled bool) error {
	f, err := os.OpenFile(s.cfg.ConfigPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("cannot open binding config: %w", err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("cannot read binding config: %w", err)
	}

	doc, err := parseConfigDocument(s.cfg.ConfigPath, b)
	if err != nil {
		return err
	}

	doc["enable"] = json.RawMessage(strconv.FormatBool(enabled))

	out, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cannot marshal binding config: %w", err)
	}

	if _, err := f.WriteAt(out, 0); err != nil {
		return fmt.Errorf("cannot write binding config: %w", err)
	}
	if err := f.Truncate(int64(len(out))); err != nil {
		return fmt.Errorf("cannot truncate binding config: %w", err)
	}

	return nil
}

func readConfigDocument(path string) (map[string]json.RawMessage, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read binding config: %w", err)
	}
	return parseConfigDocument(path, b)
}

func parseConfigDocument(path string, b []byte) (map[string]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("cannot parse binding config %s: %w", path, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("binding config %s is not an object", path)
	}
	return doc, nil
}

// Unbind asks the cloud service to unbind the device and waits for it.
func (s *Service) Unbind(ctx context.Context) error {
	argv, err := s.cfg.UnbindCommand.Argv()
	if err != nil {
		return fmt.Errorf("invalid unbind command: %w", err)
	}

	if _, err := s.runner.Run(context.WithoutCancel(ctx), argv); err != nil {
		var exitErr *sysexec.ExitError
		if errors.As(err, &exitErr) {
			s.logger.Error(
				"unbind command failed",
				"argv", argv,
				"code", exitErr.Code,
				"stderr", exitErr.Stderr)
		}
		return fmt.Errorf("unbind failed: %w", err)
	}

	return nil
}

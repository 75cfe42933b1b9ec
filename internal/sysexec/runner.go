package sysexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kvmapi_commands_total",
	Help: "System commands run by the API, by command name and result.",
}, []string{"command", "result"})

// Runner runs a command to completion.
type Runner interface {
	// Run runs argv and returns its trimmed standard output. A non-zero exit
	// is returned as an [*ExitError].
	Run(ctx context.Context, argv []string) (string, error)
}

// ExitError is returned when a command exits with a non-zero status.
type ExitError struct {
	Argv   []string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with status %d", strings.Join(e.Argv, " "), e.Code)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	Logger *slog.Logger
}

var _ Runner = (*ExecRunner)(nil)

// NewExecRunner creates a new [ExecRunner].
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{Logger: logger}
}

// Run implements [Runner].
func (r *ExecRunner) Run(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", errors.New("empty command")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Logger.Debug(
		"running command",
		"argv", argv)

	err := cmd.Run()
	countCommand(argv, err)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExitError{
				Argv:   argv,
				Code:   exitErr.ExitCode(),
				Stderr: strings.TrimSpace(stderr.String()),
			}
		}
		return "", fmt.Errorf("cannot run %q: %w", argv[0], err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

func countCommand(argv []string, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	commandsTotal.WithLabelValues(filepath.Base(argv[0]), result).Inc()
}

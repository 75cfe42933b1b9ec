package sysexec

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rebootsScheduled = promauto.NewCounter(prometheus.CounterOpts{
	Name: "kvmapi_reboots_scheduled_total",
	Help: "Delayed reboots scheduled by the API.",
})

// Rebooter runs a delayed sync-and-reboot sequence in the background.
type Rebooter struct {
	runner  Runner
	sync    Command
	reboot  Command
	delay   time.Duration
	logger  *slog.Logger
	pending atomic.Bool
}

// NewRebooter creates a new [Rebooter]. The sequence is: run sync, wait for
// delay, run reboot.
func NewRebooter(runner Runner, sync, reboot Command, delay time.Duration, logger *slog.Logger) *Rebooter {
	return &Rebooter{
		runner: runner,
		sync:   sync,
		reboot: reboot,
		delay:  delay,
		logger: logger,
	}
}

// ScheduleAfter starts the reboot sequence once ctx is done. Passing a
// request context makes the sequence wait for the handler to return, so the
// response is written before the machine goes down. The returned channel is
// closed when the sequence has finished; nothing is sent on it.
//
// Only one sequence runs at a time. If one is already pending, ScheduleAfter
// does nothing and returns nil.
func (r *Rebooter) ScheduleAfter(ctx context.Context) <-chan struct{} {
	if !r.pending.CompareAndSwap(false, true) {
		r.logger.Info("reboot already pending")
		return nil
	}

	rebootsScheduled.Inc()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer r.pending.Store(false)

		<-ctx.Done()
		r.run(r.sync)

		if r.delay > 0 {
			time.Sleep(r.delay)
		}

		r.logger.Warn("rebooting")
		r.run(r.reboot)
	}()

	return done
}

func (r *Rebooter) run(cmd Command) {
	argv, err := cmd.Argv()
	if err != nil {
		r.logger.Error(
			"invalid reboot sequence command",
			"command", string(cmd),
			"err", err)
		return
	}

	if _, err := r.runner.Run(context.Background(), argv); err != nil {
		r.logger.Error(
			"reboot sequence command failed",
			"argv", argv,
			"err", err)
	}
}

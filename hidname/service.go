package hidname

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var updatesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "kvmapi_hidname_updates_total",
	Help: "USB identity updates written to the override document.",
})

// RebootScheduler schedules a reboot to run once ctx is done.
type RebootScheduler interface {
	ScheduleAfter(ctx context.Context) <-chan struct{}
}

// Service reads and updates the USB identity. An update only takes effect
// after a reboot, which Set schedules.
type Service struct {
	store  *Store
	reboot RebootScheduler
	logger *slog.Logger
}

// NewService creates a new Service.
func NewService(store *Store, reboot RebootScheduler, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		reboot: reboot,
		logger: logger,
	}
}

// Get returns the effective identity.
func (s *Service) Get() Identity {
	return s.store.Load()
}

// Set validates p, writes it as the new override and schedules a reboot for
// when ctx is done. Nothing is written if any field is invalid; such errors
// are [*ValidationError].
func (s *Service) Set(ctx context.Context, p Params) error {
	id, err := p.Validate()
	if err != nil {
		return err
	}

	if err := s.store.Save(id); err != nil {
		return err
	}
	updatesTotal.Inc()

	s.logger.Info(
		"USB identity updated, scheduling reboot",
		"vendor_id", id.VendorID,
		"product_id", id.ProductID,
		"manufacturer", id.Manufacturer,
		"product", id.Product,
		"serial", id.Serial)

	s.reboot.ScheduleAfter(ctx)
	return nil
}

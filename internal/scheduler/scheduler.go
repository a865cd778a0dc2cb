package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pickup-rating/internal/service"
)

// Scheduler drives the weekly decay job. Decay fires every Monday at
// midnight UTC; the timer is recomputed after each run so clock adjustments
// and long runs cannot drift the schedule.
type Scheduler struct {
	maintenanceSvc *service.MaintenanceService
	logger         zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func New(maintenanceSvc *service.MaintenanceService, logger zerolog.Logger) *Scheduler {
	return &Scheduler{maintenanceSvc: maintenanceSvc, logger: logger}
}

// Start launches the background loop. Stop must be called to release it.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	for {
		next := nextMonday(time.Now().UTC())
		s.logger.Info().Time("next_run", next).Msg("weekly decay scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.maintenanceSvc.DecayAll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("weekly decay run failed")
		}
	}
}

// nextMonday returns the first Monday midnight strictly after t.
func nextMonday(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	d = d.AddDate(0, 0, 1)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

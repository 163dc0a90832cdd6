package match

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// idlePollInterval bounds how long the scheduler sleeps when no match has a
// deadline; evaluation is idempotent so an extra pass is harmless.
const idlePollInterval = 5 * time.Second

// Scheduler owns the single timer that drives countdown transitions. It
// sleeps until the earliest deadline across all live matches and fires a
// coordinator tick; the coordinator pokes it awake whenever a sooner
// deadline may have appeared. A missed wake-up converges on the next pass
// because transitions are computed from absolute time.
type Scheduler struct {
	coord *Coordinator
	clock clockwork.Clock
}

// NewScheduler creates a scheduler over the coordinator.
func NewScheduler(coord *Coordinator, clock clockwork.Clock) *Scheduler {
	return &Scheduler{coord: coord, clock: clock}
}

// Run loops until ctx is done, sleeping until the next deadline and firing
// ticks.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Msg("match scheduler started")

	timer := s.clock.NewTimer(idlePollInterval)
	defer timer.Stop()

	for {
		// Drain a stale wake so we don't spin on an already-handled poke.
		select {
		case <-s.coord.Wake():
		default:
		}

		deadline, ok := s.coord.NextDeadline()
		if !ok {
			timer.Reset(idlePollInterval)
			select {
			case <-timer.Chan():
				continue
			case <-s.coord.Wake():
				continue
			case <-ctx.Done():
				log.Info().Msg("match scheduler shutting down (idle)")
				return nil
			}
		}

		if wait := deadline.Sub(s.clock.Now()); wait > 0 {
			timer.Reset(wait)
			select {
			case <-timer.Chan():
			case <-s.coord.Wake():
				continue
			case <-ctx.Done():
				log.Info().Msg("match scheduler shutting down")
				return nil
			}
		}

		s.coord.Tick(s.clock.Now())
	}
}

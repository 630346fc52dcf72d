// Package server schedules the periodic rate-limit sweep with robfig/cron.
package server

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type sweepTarget interface {
	RequestSweep()
}

// Sweeper periodically asks the hub to drop stale rate-limit state.
type Sweeper struct {
	c   *cron.Cron
	log zerolog.Logger
}

// NewSweeper schedules target.RequestSweep every interval.
func NewSweeper(target sweepTarget, interval time.Duration, log zerolog.Logger) (*Sweeper, error) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	c := cron.New()
	spec := "@every " + interval.String()
	if _, err := c.AddFunc(spec, target.RequestSweep); err != nil {
		return nil, fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	log.Debug().Str("schedule", spec).Msg("Rate limit sweep scheduled")
	return &Sweeper{c: c, log: log}, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Sweeper) Start() {
	s.c.Start()
}

// Stop halts the scheduler and waits for a running sweep request to return.
func (s *Sweeper) Stop() {
	<-s.c.Stop().Done()
	s.log.Debug().Msg("Rate limit sweeper stopped")
}

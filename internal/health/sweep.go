package health

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/delight-co/finest-grained-auth-proxy/internal/logger"
	"github.com/delight-co/finest-grained-auth-proxy/internal/plugins"
)

// Sweeper periodically probes every configured credential and logs the
// masked results. It keeps no state; a failed probe only produces a log
// line, the same shape /auth/status would report.
type Sweeper struct {
	registry *plugins.Registry
	cron     *cron.Cron
}

// NewSweeper schedules probes with the given cron expression.
func NewSweeper(registry *plugins.Registry, schedule string) (*Sweeper, error) {
	s := &Sweeper{
		registry: registry,
		cron:     cron.New(),
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the schedule. It returns immediately.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	log := logger.Health()
	start := time.Now()

	results := ProbeAll(context.Background(), s.registry)
	for _, r := range results {
		entry := log.Info()
		if !r.Valid {
			entry = log.Warn()
		}
		entry.
			Str("plugin", r.Plugin).
			Str("account", r.Account).
			Bool("valid", r.Valid).
			Str("masked_secret", r.MaskedSecret).
			Str("error_kind", r.ErrorKind).
			Msg("credential sweep")
	}

	log.Info().
		Int("credentials", len(results)).
		Dur("duration", time.Since(start)).
		Msg("credential sweep complete")
}

// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/pointshare/internal/logging"
	"github.com/robfig/cron/v3"
)

// ExpiredTokenCleaner removes expired refresh tokens.
type ExpiredTokenCleaner interface {
	DeleteExpiredRefreshTokens(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron    *cron.Cron
	cleaner ExpiredTokenCleaner
	log     logging.Logger
}

// NewScheduler registers the refresh-token cleanup under schedule, a standard
// cron expression or a descriptor such as "@every 1h".
func NewScheduler(schedule string, cleaner ExpiredTokenCleaner, log logging.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		cleaner: cleaner,
		log:     log.With("module", "jobs"),
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.cleanup(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) cleanup(ctx context.Context) {
	n, err := s.cleaner.DeleteExpiredRefreshTokens(ctx)
	if err != nil {
		s.log.Error(ctx, "refresh token cleanup failed", "error", err)
		return
	}
	s.log.Info(ctx, "expired refresh tokens removed", "count", n)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"llmstxt-crawler/internal/logging"
)

// CronParser accepts five-field expressions and descriptors such as "@every 10m".
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Reaper deletes jobs whose last update is older than the retention window.
type Reaper struct {
	store     Store
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
	cron      *cron.Cron
}

// NewReaper builds a reaper; Start must be called to schedule it.
func NewReaper(store Store, retention time.Duration, logger *zap.Logger) *Reaper {
	return &Reaper{
		store:     store,
		retention: retention,
		logger:    logging.OrNop(logger).With(zap.String("component", "reaper")),
		now:       time.Now,
	}
}

// Sweep runs one cleanup pass.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.retention)
	removed, err := r.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reap jobs: %w", err)
	}
	if removed > 0 {
		r.logger.Info("expired jobs removed", zap.Int("count", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

// Start schedules Sweep on spec. The returned error reports an unparsable schedule.
func (r *Reaper) Start(ctx context.Context, spec string) error {
	c := cron.New(cron.WithParser(CronParser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := c.AddFunc(spec, func() {
		if _, err := r.Sweep(ctx); err != nil {
			r.logger.Warn("job cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule job cleanup %q: %w", spec, err)
	}
	r.cron = c
	c.Start()
	r.logger.Info("job cleanup scheduled", zap.String("schedule", spec), zap.Duration("retention", r.retention))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

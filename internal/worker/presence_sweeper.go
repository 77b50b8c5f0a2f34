package worker

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StaleSweeper takes offline accounts left online without a live connection.
type StaleSweeper interface {
	SweepStale(ctx context.Context) (int, error)
}

// PresenceSweeper runs the stale session sweep on a cron schedule.
type PresenceSweeper struct {
	cron     *cron.Cron
	sweeper  StaleSweeper
	schedule string
	logger   *zap.Logger
}

// NewPresenceSweeper creates the sweeper. schedule accepts standard cron
// syntax and descriptors such as "@every 1m".
func NewPresenceSweeper(sweeper StaleSweeper, schedule string, logger *zap.Logger) *PresenceSweeper {
	return &PresenceSweeper{
		cron:     cron.New(),
		sweeper:  sweeper,
		schedule: schedule,
		logger:   logger,
	}
}

// Start sweeps once immediately, so sessions orphaned by a restart are closed
// before any client reconnects, then schedules the recurring job.
func (p *PresenceSweeper) Start(ctx context.Context) error {
	p.sweep(ctx)
	if _, err := p.cron.AddFunc(p.schedule, func() { p.sweep(ctx) }); err != nil {
		return err
	}
	p.cron.Start()
	p.logger.Info("presence sweeper started", zap.String("schedule", p.schedule))
	return nil
}

// Stop waits for a running sweep to finish.
func (p *PresenceSweeper) Stop() {
	<-p.cron.Stop().Done()
	p.logger.Info("presence sweeper stopped")
}

func (p *PresenceSweeper) sweep(ctx context.Context) {
	n, err := p.sweeper.SweepStale(ctx)
	if err != nil {
		p.logger.Error("stale session sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		p.logger.Info("stale sessions closed", zap.Int("count", n))
	}
}

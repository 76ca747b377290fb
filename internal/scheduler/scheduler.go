package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper refreshes clock-dependent project counters.
type Sweeper interface {
	SweepOverdue(ctx context.Context) (int, error)
}

// Drainer retries parked event deliveries.
type Drainer interface {
	Drain(ctx context.Context) error
}

type Config struct {
	SweepInterval time.Duration
	DrainInterval time.Duration
}

// Scheduler runs the periodic maintenance jobs of a server process.
type Scheduler struct {
	sweeper Sweeper
	drainer Drainer
	logger  *zap.Logger
	cron    *cron.Cron
	cfg     Config
}

func New(sweeper Sweeper, drainer Drainer, logger *zap.Logger, cfg Config) (*Scheduler, error) {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		sweeper: sweeper,
		drainer: drainer,
		logger:  logger,
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds()),
	}
	if sweeper != nil {
		if _, err := s.cron.AddFunc(every(cfg.SweepInterval), s.job("overdue sweep", cfg.SweepInterval, s.sweep)); err != nil {
			return nil, err
		}
	}
	if drainer != nil {
		if _, err := s.cron.AddFunc(every(cfg.DrainInterval), s.job("outbox drain", cfg.DrainInterval, s.drain)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func every(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("@every %ds", secs)
}

func (s *Scheduler) job(name string, timeout time.Duration, fn func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Error(name+" failed", zap.Error(err))
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) error {
	n, err := s.sweeper.SweepOverdue(ctx)
	if err != nil {
		return err
	}
	s.logger.Debug("overdue sweep finished", zap.Int("projects", n))
	return nil
}

func (s *Scheduler) drain(ctx context.Context) error {
	return s.drainer.Drain(ctx)
}

// RunOnce executes every configured job synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s.sweeper != nil {
		if err := s.sweep(ctx); err != nil {
			return err
		}
	}
	if s.drainer != nil {
		return s.drain(ctx)
	}
	return nil
}

func (s *Scheduler) Start() {
	if s == nil || s.cron == nil {
		return
	}
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.Duration("sweep_interval", s.cfg.SweepInterval),
		zap.Duration("drain_interval", s.cfg.DrainInterval))
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Info("scheduler stopped")
	return nil
}

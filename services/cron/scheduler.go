package cron

import (
	"context"
	"time"

	"seedloop-core/pkg/config"
	"seedloop-core/pkg/dlock"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("cron",
	fx.Provide(NewScheduler),
	fx.Invoke(StartScheduler),
)

// Job is one lease-guarded unit of periodic work.
type Job struct {
	Name string
	// Lock is the cron lease name guarding the job across replicas.
	Lock string
	TTL  time.Duration
	Run  func(ctx context.Context) error
}

// Scheduler ticks on a fixed interval and attempts every registered job. A
// replica that loses the lease for a job skips it; the winner runs it and
// releases early on completion. Invocations hold no shared memory, so the
// lease ledger is the only coordination between replicas.
type Scheduler struct {
	locks    *dlock.Manager
	interval time.Duration
	jobs     []Job
}

type SchedulerParams struct {
	fx.In

	Locks  *dlock.Manager
	Config *config.Config
	Jobs   *Jobs
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{
		locks:    p.Locks,
		interval: p.Config.Cron.TickInterval,
		jobs:     p.Jobs.All(),
	}
}

// StartScheduler wires the scheduler loop into the fx lifecycle.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started", zap.Duration("interval", s.interval), zap.Int("jobs", len(s.jobs)))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	for _, job := range s.jobs {
		s.runJob(ctx, job)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	holder := dlock.NewHolder()

	lease, err := s.locks.Acquire(ctx, job.Lock, job.TTL, holder)
	if err != nil {
		zap.L().Error("[Scheduler] lease acquire failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	if !lease.Acquired {
		zap.L().Debug("[Scheduler] job already running elsewhere", zap.String("job", job.Name))
		return
	}
	defer s.locks.Release(ctx, job.Lock, holder)

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		zap.L().Error("[Scheduler] job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] job finished",
		zap.String("job", job.Name),
		zap.Duration("duration", time.Since(start)),
	)
}

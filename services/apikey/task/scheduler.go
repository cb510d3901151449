package task

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"keywarden/pkg/config"
	"keywarden/pkg/task"
)

type Scheduler struct {
	enqueuer task.Enqueuer
	interval time.Duration
}

func NewScheduler(cfg *config.Config, enqueuer task.Enqueuer) *Scheduler {
	return &Scheduler{
		enqueuer: enqueuer,
		interval: cfg.ApiKey.SweepInterval,
	}
}

// StartScheduler runs the sweep loop for the lifetime of the process. The
// loop gets a cancellable context so shutdown does not leak the goroutine.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	if s.interval <= 0 {
		zap.L().Info("[Scheduler] expired key sweep disabled")
		return
	}

	zap.L().Info("[Scheduler] started expired key sweep",
		zap.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.enqueuer.Enqueue(NewSweepExpiredTask()); err != nil {
				zap.L().Error("[Scheduler] failed to enqueue sweep", zap.Error(err))
			}
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

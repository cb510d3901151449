package task

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"keywarden/services/apikey"
)

// TypeSweepExpired deactivates keys whose expiration timestamp has passed.
// Verification already rejects expired keys on its own; the sweep only keeps
// the stored is_active flag in line with reality for listings and reports.
const TypeSweepExpired = "apikey:sweep_expired"

func NewSweepExpiredTask() *asynq.Task {
	return asynq.NewTask(TypeSweepExpired, nil, asynq.Queue("low"))
}

func HandleSweepExpired(svc *apikey.Service) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()

		n, err := svc.ExpireDue(ctx)
		if err != nil {
			zap.L().Error("expired key sweep failed", zap.Error(err))
			return err
		}

		zap.L().Info("expired key sweep finished",
			zap.Int64("deactivated", n),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

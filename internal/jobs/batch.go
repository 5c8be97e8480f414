package jobs

import (
	"context"
	"errors"
	"fmt"

	"fulfillment-be/internal/apperror"
	"fulfillment-be/internal/logger"
	"fulfillment-be/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Result int

const (
	ResultSkipped Result = iota
	ResultApplied
)

// Step handles one candidate. It must reload the aggregate and re-check the
// job's rule before mutating it.
type Step func(ctx context.Context, id uuid.UUID) (Result, error)

// RunBatch processes ids one at a time. Each candidate runs inside its own
// failure boundary: errors and panics are logged, counted and never abort the
// batch. Cancelling ctx stops the batch before the next candidate; a
// candidate already started always runs to completion.
func RunBatch(ctx context.Context, locker Locker, entity string, ids []uuid.UUID, step Step) *metrics.BatchStats {
	stats := metrics.NewBatchStats()
	log := logger.FromCtx(ctx)

	for _, id := range ids {
		if ctx.Err() != nil {
			log.Info("shutdown requested, stopping batch",
				zap.Int("remaining", len(ids)-int(stats.Candidates.Load())),
			)
			break
		}
		stats.Candidates.Inc()

		res, err := runCandidate(context.WithoutCancel(ctx), locker, entity, id, step)
		cLog := log.With(zap.String("entity", entity), zap.String("id", id.String()))

		switch {
		case err == nil && res == ResultApplied:
			stats.Applied.Inc()
		case err == nil:
			stats.Skipped.Inc()
		case errors.Is(err, ErrLockHeld):
			stats.Skipped.Inc()
			cLog.Info("candidate locked by another run, skipping", zap.Error(err))
		case errors.Is(err, apperror.ErrInvalidState), errors.Is(err, apperror.ErrNotFound):
			stats.Skipped.Inc()
			cLog.Warn("candidate no longer eligible, skipping", zap.Error(err))
		default:
			stats.Failed.Inc()
			cLog.Error("candidate failed", zap.Error(err), zap.Bool("retryable", apperror.IsRetryable(err)))
		}
	}

	return stats
}

func runCandidate(ctx context.Context, locker Locker, entity string, id uuid.UUID, step Step) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	unlock, err := locker.Lock(ctx, entity+":"+id.String())
	if err != nil {
		return ResultSkipped, err
	}
	defer unlock()

	return step(ctx, id)
}

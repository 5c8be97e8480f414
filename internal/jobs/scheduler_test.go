package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"fulfillment-be/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCronScheduler(t *testing.T) {
	t.Run("RejectsInvalidSchedule", func(t *testing.T) {
		s := NewCronScheduler()
		err := s.Register(JobWaitingOrderCancel, "every now and then", func(context.Context) {})
		assert.ErrorContains(t, err, JobWaitingOrderCancel)
	})

	t.Run("RunsAndStops", func(t *testing.T) {
		s := NewCronScheduler()
		ran := make(chan struct{}, 1)
		var jobCtx context.Context

		require.NoError(t, s.Register(JobOrderTrackingSync, "@every 1s", func(ctx context.Context) {
			jobCtx = ctx
			select {
			case ran <- struct{}{}:
			default:
			}
		}))
		s.Start()

		select {
		case <-ran:
		case <-time.After(3 * time.Second):
			t.Fatal("job did not run")
		}

		done := s.Stop()
		select {
		case <-done.Done():
		case <-time.After(time.Second):
			t.Fatal("scheduler did not stop")
		}
		assert.ErrorIs(t, jobCtx.Err(), context.Canceled)
	})
}

func TestCronLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := cronLogger{log: zap.New(core)}

	l.Info("schedule", "entry", 1)
	l.Error(errors.New("boom"), "panic", "job", "x")

	all := logs.All()
	require.Len(t, all, 2)
	assert.Equal(t, zapcore.DebugLevel, all[0].Level)
	assert.Equal(t, int64(1), all[0].ContextMap()["entry"])
	assert.Equal(t, zapcore.ErrorLevel, all[1].Level)
	assert.Equal(t, "boom", all[1].ContextMap()["error"])
	assert.Equal(t, "x", all[1].ContextMap()["job"])
}

func TestNewCronSchedulerUsesGlobalLogger(t *testing.T) {
	restore := logger.Replace(zap.NewNop())
	defer restore()

	assert.NotNil(t, NewCronScheduler())
}

package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	jobKey       ctxKey = "job"
	runIDKey     ctxKey = "run_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithJobRun tags ctx with the running job name and its run id.
func WithJobRun(ctx context.Context, job, runID string) context.Context {
	ctx = context.WithValue(ctx, jobKey, job)
	return context.WithValue(ctx, runIDKey, runID)
}

func JobRunFrom(ctx context.Context) (job, runID string) {
	job, _ = ctx.Value(jobKey).(string)
	runID, _ = ctx.Value(runIDKey).(string)
	return job, runID
}

// FromCtx returns the global logger decorated with whatever request or job
// identifiers ctx carries.
func FromCtx(ctx context.Context) *zap.Logger {
	l := L()
	if reqID := RequestIDFrom(ctx); reqID != "" {
		l = l.With(zap.String("request_id", reqID))
	}
	if job, runID := JobRunFrom(ctx); job != "" {
		l = l.With(zap.String("job", job), zap.String("run_id", runID))
	}
	return l
}

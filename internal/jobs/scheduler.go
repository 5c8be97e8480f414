package jobs

import (
	"context"
	"fmt"

	"fulfillment-be/internal/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs registered tasks on their cadence.
type Scheduler interface {
	Register(name, spec string, run func(ctx context.Context)) error
	Start()
	// Stop stops scheduling and returns a context that is done once running
	// tasks have returned.
	Stop() context.Context
}

type CronScheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCronScheduler builds a scheduler that recovers panicking tasks and skips
// a tick while the previous run of the same task is still going.
func NewCronScheduler() *CronScheduler {
	l := cronLogger{log: logger.L().With(zap.String("component", "cron"))}
	ctx, cancel := context.WithCancel(context.Background())

	return &CronScheduler{
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *CronScheduler) Register(name, spec string, run func(ctx context.Context)) error {
	if _, err := s.cron.AddFunc(spec, func() { run(s.ctx) }); err != nil {
		return fmt.Errorf("register job %s (%q): %w", name, spec, err)
	}
	return nil
}

func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop cancels the context handed to running tasks so batches stop at the
// next candidate boundary.
func (s *CronScheduler) Stop() context.Context {
	s.cancel()
	return s.cron.Stop()
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fulfillment-be/internal/carrier"
	"fulfillment-be/internal/config"
	"fulfillment-be/internal/db"
	"fulfillment-be/internal/httpclient"
	"fulfillment-be/internal/jobs"
	"fulfillment-be/internal/logger"
	"fulfillment-be/internal/metrics"
	"fulfillment-be/internal/middleware"
	"fulfillment-be/internal/order"
	"fulfillment-be/internal/reconcile"
	"fulfillment-be/internal/refund"
	"fulfillment-be/internal/settlement"
	"fulfillment-be/internal/shopstats"
	"fulfillment-be/internal/wallet"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	lockExpiry      = 2 * time.Minute
	shutdownTimeout = 30 * time.Second
)

// jobTrigger runs a named job on demand.
type jobTrigger interface {
	RunOnce(ctx context.Context, name string) (*metrics.BatchStats, error)
}

var (
	initDBFunc      = db.InitDB
	startServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownSignal  = func() (context.Context, context.CancelFunc) {
		return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	}
)

func main() {
	once := flag.String("once", "", "run a single job by name and exit")
	flag.Parse()

	if err := run(*once); err != nil {
		logger.L().Fatal("worker stopped with error", zap.Error(err))
	}
}

func run(once string) error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	locker, closeLocker := newLocker(cfg)
	defer closeLocker()

	runner := newRunner(cfg, database, locker)

	if once != "" {
		ctx, stop := shutdownSignal()
		defer stop()

		_, err := runner.RunOnce(ctx, once)
		return err
	}

	sched := jobs.NewCronScheduler()
	if err := runner.Register(sched, cfg.Schedules); err != nil {
		return err
	}
	sched.Start()

	limiter := middleware.NewOpsLimiter()
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	go limiter.RunCleanup(cleanupCtx)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           setupRouter(database, runner, cfg.OpsToken, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("worker ops server listening", zap.String("port", cfg.AppPort))
		if err := startServerFunc(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := shutdownSignal()
	defer stop()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.L().Info("shutdown signal received")
	case serveErr = <-errCh:
		logger.L().Error("ops server failed", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L().Warn("ops server shutdown", zap.Error(err))
	}

	select {
	case <-sched.Stop().Done():
		logger.L().Info("jobs stopped gracefully")
	case <-shutdownCtx.Done():
		logger.L().Warn("jobs forced to stop after timeout")
	}

	return serveErr
}

func newRunner(cfg *config.Config, database *sql.DB, locker jobs.Locker) *jobs.Runner {
	clientOpts := []httpclient.Option{
		httpclient.WithTimeout(cfg.HTTPTimeout),
		httpclient.WithMaxRetries(cfg.HTTPMaxRetries),
	}

	orders := order.NewRepository(database)
	refunds := refund.NewRepository(database)

	reconciler := reconcile.New(reconcile.Deps{
		Carrier:     carrier.New(cfg.CarrierBaseURL, cfg.CarrierCallInterval, append(clientOpts, httpclient.WithAPIKey(cfg.CarrierAPIKey))...),
		Orders:      orders,
		Refunds:     refunds,
		SystemActor: cfg.SystemActorID,
	})

	settler := settlement.NewEngine(settlement.Deps{
		Wallet:          wallet.New(cfg.WalletBaseURL, append(clientOpts, httpclient.WithAPIKey(cfg.WalletAPIKey))...),
		ShopStats:       shopstats.New(cfg.ShopStatsBaseURL, clientOpts...),
		FeeRate:         cfg.SettlementFeeRate,
		CompletionDelta: cfg.CompletionRateDelta,
		SystemActor:     cfg.SystemActorID,
	})

	return jobs.NewRunner(jobs.Deps{
		Orders:      orders,
		Refunds:     refunds,
		Reconciler:  reconciler,
		Settler:     settler,
		Locker:      locker,
		SystemActor: cfg.SystemActorID,
		BatchSize:   cfg.JobBatchSize,
	})
}

// newLocker returns a Redis-backed locker when REDIS_ADDR is set and
// reachable, and a no-op locker otherwise.
func newLocker(cfg *config.Config) (jobs.Locker, func()) {
	if cfg.RedisAddr == "" {
		logger.L().Info("REDIS_ADDR not set, aggregate locks disabled")
		return jobs.NopLocker{}, func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.L().Error("redis unreachable, aggregate locks disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = client.Close()
		return jobs.NopLocker{}, func() {}
	}

	return jobs.NewRedisLocker(client, lockExpiry), func() { _ = client.Close() }
}

func setupRouter(database *sql.DB, trigger jobTrigger, opsToken string, limiter *middleware.Limiter) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := database.PingContext(ctx); err != nil {
			logger.FromCtx(r.Context()).Error("health check failed", zap.Error(err))
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	runJob := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		logger.FromCtx(r.Context()).Info("manual job trigger", zap.String("job", name))

		// A disconnecting client must not abort a batch midway.
		stats, err := trigger.RunOnce(context.WithoutCancel(r.Context()), name)
		if errors.Is(err, jobs.ErrUnknownJob) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, triggerResponse{Job: name, Stats: stats.Snapshot()})
	})
	mux.Handle("POST /jobs/run", limiter.Middleware(middleware.RequireOpsToken(opsToken, runJob)))

	return logger.RequestIDMiddleware(logger.LoggingMiddleware(mux))
}

type triggerResponse struct {
	Job   string           `json:"job"`
	Stats metrics.Snapshot `json:"stats"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.L().Warn("failed to encode response", zap.Error(err))
	}
}

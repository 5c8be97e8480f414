// Package jobs holds the scheduled reconciliation jobs that move orders and
// refunds forward on elapsed time or carrier status.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment-be/internal/config"
	"fulfillment-be/internal/logger"
	"fulfillment-be/internal/metrics"
	"fulfillment-be/internal/order"
	"fulfillment-be/internal/reconcile"
	"fulfillment-be/internal/refund"
	"fulfillment-be/internal/settlement"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	JobWaitingOrderCancel    = "waiting-order-cancel"
	JobPendingOrderCancel    = "pending-order-cancel"
	JobProcessingOrderCancel = "processing-order-cancel"
	JobDeliveredOrderDone    = "delivered-order-complete"
	JobShippedOrderSettle    = "shipped-order-settle"
	JobOrderTrackingSync     = "order-tracking-sync"
	JobRefundTrackingSync    = "refund-tracking-sync"
)

const defaultBatchSize = 200

var ErrUnknownJob = errors.New("jobs: unknown job")

type TrackingReconciler interface {
	ReconcileOrder(ctx context.Context, o *order.Order) (reconcile.Outcome, error)
	ReconcileRefund(ctx context.Context, r *refund.RefundRequest) (reconcile.Outcome, error)
}

type Settler interface {
	Settle(ctx context.Context, o *order.Order) (settlement.Quote, error)
	RecordCompletion(ctx context.Context, o *order.Order)
}

type Deps struct {
	Orders      order.Repository
	Refunds     refund.Repository
	Reconciler  TrackingReconciler
	Settler     Settler
	Locker      Locker
	SystemActor string
	BatchSize   int
	Clock       func() time.Time
}

type Runner struct {
	orders     order.Repository
	refunds    refund.Repository
	reconciler TrackingReconciler
	settler    Settler
	locker     Locker
	actor      string
	batchSize  int
	clock      func() time.Time
}

func NewRunner(d Deps) *Runner {
	r := &Runner{
		orders:     d.Orders,
		refunds:    d.Refunds,
		reconciler: d.Reconciler,
		settler:    d.Settler,
		locker:     d.Locker,
		actor:      d.SystemActor,
		batchSize:  d.BatchSize,
		clock:      d.Clock,
	}
	if r.locker == nil {
		r.locker = NopLocker{}
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	return r
}

type Definition struct {
	Name string
	Spec string
	Run  func(ctx context.Context) *metrics.BatchStats
}

func (r *Runner) Definitions(s config.Schedules) []Definition {
	return []Definition{
		{JobWaitingOrderCancel, s.WaitingCancel, r.CancelWaitingOrders},
		{JobPendingOrderCancel, s.PendingCancel, r.CancelPendingOrders},
		{JobProcessingOrderCancel, s.ProcessingCancel, r.CancelProcessingOrders},
		{JobDeliveredOrderDone, s.DeliveredDone, r.CompleteDeliveredOrders},
		{JobShippedOrderSettle, s.ShippedSettle, r.SettleShippedOrders},
		{JobOrderTrackingSync, s.OrderTracking, r.SyncOrderTracking},
		{JobRefundTrackingSync, s.RefundTracking, r.SyncRefundTracking},
	}
}

// Register adds every job to sched.
func (r *Runner) Register(sched Scheduler, s config.Schedules) error {
	for _, def := range r.Definitions(s) {
		if err := sched.Register(def.Name, def.Spec, func(ctx context.Context) { r.execute(ctx, def) }); err != nil {
			return err
		}
		logger.L().Info("job registered", zap.String("job", def.Name), zap.String("schedule", def.Spec))
	}
	return nil
}

// RunOnce runs the named job immediately.
func (r *Runner) RunOnce(ctx context.Context, name string) (*metrics.BatchStats, error) {
	for _, def := range r.Definitions(config.Schedules{}) {
		if def.Name == name {
			return r.execute(ctx, def), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

func (r *Runner) execute(ctx context.Context, def Definition) *metrics.BatchStats {
	ctx = logger.WithJobRun(ctx, def.Name, uuid.NewString())
	log := logger.FromCtx(ctx)

	log.Info("job started")
	stats := def.Run(ctx)
	log.Info("job finished", stats.Fields()...)
	return stats
}

func (r *Runner) CancelWaitingOrders(ctx context.Context) *metrics.BatchStats {
	return r.cancelTimedOut(ctx, order.StatusWaiting, WaitingOrderTimeout)
}

func (r *Runner) CancelPendingOrders(ctx context.Context) *metrics.BatchStats {
	return r.cancelTimedOut(ctx, order.StatusPending, PendingOrderTimeout)
}

func (r *Runner) CancelProcessingOrders(ctx context.Context) *metrics.BatchStats {
	return r.cancelTimedOut(ctx, order.StatusProcessing, ProcessingOrderTimeout)
}

func (r *Runner) cancelTimedOut(ctx context.Context, status order.Status, timeout time.Duration) *metrics.BatchStats {
	now := r.clock()
	candidates, err := r.orders.FindByStatusCreatedBefore(ctx, status, now.Add(-timeout), r.batchSize)
	if err != nil {
		return r.loadFailed(ctx, err)
	}

	return RunBatch(ctx, r.locker, "order", orderIDs(candidates), func(ctx context.Context, id uuid.UUID) (Result, error) {
		o, err := r.orders.GetByID(ctx, id)
		if err != nil {
			return ResultSkipped, err
		}
		if !TimedOut(o, status, timeout, now) {
			return ResultSkipped, nil
		}
		if err := o.CancelOnTimeout(r.actor, now); err != nil {
			return ResultSkipped, err
		}
		if err := r.orders.Save(ctx, o); err != nil {
			return ResultSkipped, err
		}
		logger.FromCtx(ctx).Info("order cancelled on timeout",
			zap.String("order_id", o.ID.String()),
			zap.String("previous_status", status.String()),
		)
		return ResultApplied, nil
	})
}

// CompleteDeliveredOrders settles and completes orders delivered more than
// three days ago without a customer confirmation.
func (r *Runner) CompleteDeliveredOrders(ctx context.Context) *metrics.BatchStats {
	now := r.clock()
	candidates, err := r.orders.FindDeliveredBefore(ctx, now.Add(-DeliveredCompleteAfter), r.batchSize)
	if err != nil {
		return r.loadFailed(ctx, err)
	}

	return RunBatch(ctx, r.locker, "order", orderIDs(candidates), func(ctx context.Context, id uuid.UUID) (Result, error) {
		return r.settleAndComplete(ctx, id, func(o *order.Order) bool { return DueForCompletion(o, now) }, now)
	})
}

// SettleShippedOrders settles and completes orders shipped more than three
// days ago that never reported delivery.
func (r *Runner) SettleShippedOrders(ctx context.Context) *metrics.BatchStats {
	now := r.clock()
	candidates, err := r.orders.FindShippedBefore(ctx, now.Add(-ShippedSettleAfter), r.batchSize)
	if err != nil {
		return r.loadFailed(ctx, err)
	}

	return RunBatch(ctx, r.locker, "order", orderIDs(candidates), func(ctx context.Context, id uuid.UUID) (Result, error) {
		return r.settleAndComplete(ctx, id, func(o *order.Order) bool { return DueForSettlement(o, now) }, now)
	})
}

// settleAndComplete pays the shop before completing the order. A failed
// payout or save leaves the order as is for the next run; the completion-rate
// bump follows only a persisted completion.
func (r *Runner) settleAndComplete(ctx context.Context, id uuid.UUID, due func(*order.Order) bool, now time.Time) (Result, error) {
	o, err := r.orders.GetByID(ctx, id)
	if err != nil {
		return ResultSkipped, err
	}
	if !due(o) {
		return ResultSkipped, nil
	}
	if err := order.CanTransition(o.Status, order.StatusCompleted); err != nil {
		return ResultSkipped, err
	}

	q, err := r.settler.Settle(ctx, o)
	if err != nil {
		return ResultSkipped, err
	}
	if err := o.Complete(r.actor, now); err != nil {
		return ResultSkipped, err
	}
	if err := r.orders.Save(ctx, o); err != nil {
		return ResultSkipped, err
	}
	r.settler.RecordCompletion(ctx, o)

	logger.FromCtx(ctx).Info("order settled and completed",
		zap.String("order_id", o.ID.String()),
		zap.String("amount_to_shop", q.AmountToShop.StringFixed(2)),
	)
	return ResultApplied, nil
}

func (r *Runner) SyncOrderTracking(ctx context.Context) *metrics.BatchStats {
	candidates, err := r.orders.FindTrackable(ctx, trackableOrderStatuses, r.batchSize)
	if err != nil {
		return r.loadFailed(ctx, err)
	}

	return RunBatch(ctx, r.locker, "order", orderIDs(candidates), func(ctx context.Context, id uuid.UUID) (Result, error) {
		o, err := r.orders.GetByID(ctx, id)
		if err != nil {
			return ResultSkipped, err
		}
		outcome, err := r.reconciler.ReconcileOrder(ctx, o)
		if err != nil {
			return ResultSkipped, err
		}
		return outcomeResult(outcome), nil
	})
}

// SyncRefundTracking follows return parcels; PACKED and ON_DELIVERY refunds
// are polled so a refund can reach DELIVERED.
func (r *Runner) SyncRefundTracking(ctx context.Context) *metrics.BatchStats {
	candidates, err := r.refunds.FindTrackable(ctx, trackableRefundStatuses, r.batchSize)
	if err != nil {
		return r.loadFailed(ctx, err)
	}

	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}

	return RunBatch(ctx, r.locker, "refund", ids, func(ctx context.Context, id uuid.UUID) (Result, error) {
		rf, err := r.refunds.GetByID(ctx, id)
		if err != nil {
			return ResultSkipped, err
		}
		outcome, err := r.reconciler.ReconcileRefund(ctx, rf)
		if err != nil {
			return ResultSkipped, err
		}
		return outcomeResult(outcome), nil
	})
}

func (r *Runner) loadFailed(ctx context.Context, err error) *metrics.BatchStats {
	logger.FromCtx(ctx).Error("failed to load candidates", zap.Error(err))
	stats := metrics.NewBatchStats()
	stats.Failed.Inc()
	return stats
}

func outcomeResult(o reconcile.Outcome) Result {
	if o == reconcile.OutcomeApplied {
		return ResultApplied
	}
	return ResultSkipped
}

func orderIDs(orders []*order.Order) []uuid.UUID {
	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids
}

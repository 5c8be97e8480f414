package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"fulfillment-be/internal/apperror"
	"fulfillment-be/internal/config"
	"fulfillment-be/internal/order"
	"fulfillment-be/internal/reconcile"
	"fulfillment-be/internal/refund"
	"fulfillment-be/internal/settlement"
	"fulfillment-be/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func orderAt(status order.Status, createdAgo time.Duration) *order.Order {
	return &order.Order{
		ID:            uuid.New(),
		ShopID:        uuid.New(),
		Status:        status,
		PaymentMethod: order.PaymentMethodPrepaid,
		PaymentStatus: order.PaymentStatusPaid,
		FinalAmount:   decimal.NewFromInt(1_000_000),
		CreatedAt:     now.Add(-createdAgo),
		Version:       1,
	}
}

func newTestRunner(orders *memOrders, refunds *memRefunds, rec TrackingReconciler, settler Settler) *Runner {
	return NewRunner(Deps{
		Orders:      orders,
		Refunds:     refunds,
		Reconciler:  rec,
		Settler:     settler,
		SystemActor: "system",
		BatchSize:   50,
		Clock:       func() time.Time { return now },
	})
}

func TestTimeoutRules(t *testing.T) {
	assert.True(t, TimedOut(orderAt(order.StatusWaiting, 25*time.Minute), order.StatusWaiting, WaitingOrderTimeout, now))
	assert.False(t, TimedOut(orderAt(order.StatusWaiting, 19*time.Minute), order.StatusWaiting, WaitingOrderTimeout, now))
	assert.False(t, TimedOut(orderAt(order.StatusWaiting, 20*time.Minute), order.StatusWaiting, WaitingOrderTimeout, now))
	assert.False(t, TimedOut(orderAt(order.StatusPending, 25*time.Minute), order.StatusWaiting, WaitingOrderTimeout, now))

	delivered := orderAt(order.StatusDelivered, 10*24*time.Hour)
	assert.False(t, DueForCompletion(delivered, now))
	delivered.ActualDeliveryAt = utils.TimePtr(now.Add(-73 * time.Hour))
	assert.True(t, DueForCompletion(delivered, now))
	delivered.ActualDeliveryAt = utils.TimePtr(now.Add(-71 * time.Hour))
	assert.False(t, DueForCompletion(delivered, now))

	shipped := orderAt(order.StatusShipped, 10*24*time.Hour)
	shipped.ShippedAt = utils.TimePtr(now.Add(-4 * 24 * time.Hour))
	assert.True(t, DueForSettlement(shipped, now))
	shipped.Status = order.StatusDelivered
	assert.False(t, DueForSettlement(shipped, now))
}

func TestCancelWaitingOrders(t *testing.T) {
	stale := orderAt(order.StatusWaiting, 25*time.Minute)
	fresh := orderAt(order.StatusWaiting, 5*time.Minute)
	orders := newMemOrders(stale, fresh)

	stats := newTestRunner(orders, nil, nil, nil).CancelWaitingOrders(context.Background())

	assert.Equal(t, uint64(1), stats.Candidates.Load())
	assert.Equal(t, uint64(1), stats.Applied.Load())

	got := orders.get(stale.ID)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.Equal(t, "system", got.UpdatedBy)
	assert.Equal(t, now, *got.CancelledAt)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, order.StatusWaiting, orders.get(fresh.ID).Status)
}

func TestCancelPendingOrders(t *testing.T) {
	old := orderAt(order.StatusPending, 3*24*time.Hour)
	recent := orderAt(order.StatusPending, time.Hour)
	orders := newMemOrders(old, recent)

	stats := newTestRunner(orders, nil, nil, nil).CancelPendingOrders(context.Background())

	assert.Equal(t, uint64(1), stats.Applied.Load())
	assert.Equal(t, order.StatusCancelled, orders.get(old.ID).Status)
	assert.Equal(t, order.StatusPending, orders.get(recent.ID).Status)
	assert.Nil(t, orders.get(recent.ID).CancelledAt)
}

func TestCancelProcessingOrders(t *testing.T) {
	stuck := orderAt(order.StatusProcessing, 25*time.Hour)
	packed := orderAt(order.StatusPacked, 25*time.Hour)
	orders := newMemOrders(stuck, packed)

	stats := newTestRunner(orders, nil, nil, nil).CancelProcessingOrders(context.Background())

	assert.Equal(t, uint64(1), stats.Applied.Load())
	assert.Equal(t, order.StatusCancelled, orders.get(stuck.ID).Status)
	assert.Equal(t, order.StatusPacked, orders.get(packed.ID).Status)
}

func TestSettleShippedOrders(t *testing.T) {
	due1 := orderAt(order.StatusShipped, 6*24*time.Hour)
	due1.ShippedAt = utils.TimePtr(now.Add(-4 * 24 * time.Hour))
	due2 := orderAt(order.StatusShipped, 5*24*time.Hour)
	due2.ShippedAt = utils.TimePtr(now.Add(-73 * time.Hour))
	recent := orderAt(order.StatusShipped, 2*24*time.Hour)
	recent.ShippedAt = utils.TimePtr(now.Add(-24 * time.Hour))

	orders := newMemOrders(due1, due2, recent)
	settler := new(MockSettler)
	quote := settlement.NewQuote(decimal.NewFromInt(1_000_000), decimal.RequireFromString("0.10"))
	settler.On("Settle", mock.Anything, mock.AnythingOfType("*order.Order")).Return(quote, nil)
	settler.On("RecordCompletion", mock.Anything, mock.AnythingOfType("*order.Order")).Return()

	runner := newTestRunner(orders, nil, nil, settler)
	stats := runner.SettleShippedOrders(context.Background())

	assert.Equal(t, uint64(2), stats.Applied.Load())
	settler.AssertNumberOfCalls(t, "Settle", 2)
	settler.AssertNumberOfCalls(t, "RecordCompletion", 2)
	for _, id := range []uuid.UUID{due1.ID, due2.ID} {
		got := orders.get(id)
		assert.Equal(t, order.StatusCompleted, got.Status)
		assert.Equal(t, now, *got.CompletedAt)
	}
	assert.Equal(t, order.StatusShipped, orders.get(recent.ID).Status)

	// Completed orders are no longer candidates, so a second run pays nobody.
	stats = runner.SettleShippedOrders(context.Background())
	assert.Equal(t, uint64(0), stats.Candidates.Load())
	settler.AssertNumberOfCalls(t, "Settle", 2)
	settler.AssertNumberOfCalls(t, "RecordCompletion", 2)
}

func TestSettleShippedOrders_RetryAfterFailedSave(t *testing.T) {
	due := orderAt(order.StatusShipped, 6*24*time.Hour)
	due.ShippedAt = utils.TimePtr(now.Add(-4 * 24 * time.Hour))

	orders := newMemOrders(due)
	orders.saveErr = order.ErrStaleVersion
	settler := new(MockSettler)
	settler.On("Settle", mock.Anything, mock.Anything).Return(settlement.Quote{}, nil)
	settler.On("RecordCompletion", mock.Anything, mock.Anything).Return()
	runner := newTestRunner(orders, nil, nil, settler)

	stats := runner.SettleShippedOrders(context.Background())
	assert.Equal(t, uint64(1), stats.Failed.Load())
	settler.AssertNotCalled(t, "RecordCompletion", mock.Anything, mock.Anything)

	orders.saveErr = nil
	stats = runner.SettleShippedOrders(context.Background())
	assert.Equal(t, uint64(1), stats.Applied.Load())
	assert.Equal(t, order.StatusCompleted, orders.get(due.ID).Status)

	// The wallet dedupes the repeated payout by transaction id; the
	// completion rate is bumped exactly once.
	settler.AssertNumberOfCalls(t, "Settle", 2)
	settler.AssertNumberOfCalls(t, "RecordCompletion", 1)
}

func TestSettleShippedOrders_FailureBoundary(t *testing.T) {
	failing := orderAt(order.StatusShipped, 7*24*time.Hour)
	failing.ShippedAt = utils.TimePtr(now.Add(-5 * 24 * time.Hour))
	healthy := orderAt(order.StatusShipped, 6*24*time.Hour)
	healthy.ShippedAt = utils.TimePtr(now.Add(-4 * 24 * time.Hour))

	orders := newMemOrders(failing, healthy)
	settler := new(MockSettler)
	settler.On("Settle", mock.Anything, mock.MatchedBy(func(o *order.Order) bool { return o.ID == failing.ID })).
		Return(settlement.Quote{}, apperror.ErrExternalUnavailable)
	settler.On("Settle", mock.Anything, mock.MatchedBy(func(o *order.Order) bool { return o.ID == healthy.ID })).
		Return(settlement.Quote{}, nil)
	settler.On("RecordCompletion", mock.Anything, mock.MatchedBy(func(o *order.Order) bool { return o.ID == healthy.ID })).
		Return().Once()

	stats := newTestRunner(orders, nil, nil, settler).SettleShippedOrders(context.Background())

	assert.Equal(t, uint64(2), stats.Candidates.Load())
	assert.Equal(t, uint64(1), stats.Failed.Load())
	assert.Equal(t, uint64(1), stats.Applied.Load())
	assert.Equal(t, order.StatusShipped, orders.get(failing.ID).Status)
	assert.Equal(t, order.StatusCompleted, orders.get(healthy.ID).Status)
}

func TestCompleteDeliveredOrders(t *testing.T) {
	due := orderAt(order.StatusDelivered, 10*24*time.Hour)
	due.ActualDeliveryAt = utils.TimePtr(now.Add(-80 * time.Hour))
	early := orderAt(order.StatusDelivered, 10*24*time.Hour)
	early.ActualDeliveryAt = utils.TimePtr(now.Add(-2 * time.Hour))

	orders := newMemOrders(due, early)
	settler := new(MockSettler)
	settler.On("Settle", mock.Anything, mock.Anything).Return(settlement.Quote{}, nil).Once()
	settler.On("RecordCompletion", mock.Anything, mock.Anything).Return().Once()

	stats := newTestRunner(orders, nil, nil, settler).CompleteDeliveredOrders(context.Background())

	assert.Equal(t, uint64(1), stats.Applied.Load())
	assert.Equal(t, order.StatusCompleted, orders.get(due.ID).Status)
	assert.Equal(t, order.StatusDelivered, orders.get(early.ID).Status)
	settler.AssertExpectations(t)
}

func TestCompleteDeliveredOrders_SaveConflict(t *testing.T) {
	due := orderAt(order.StatusDelivered, 10*24*time.Hour)
	due.ActualDeliveryAt = utils.TimePtr(now.Add(-80 * time.Hour))

	orders := newMemOrders(due)
	orders.saveErr = order.ErrStaleVersion
	settler := new(MockSettler)
	settler.On("Settle", mock.Anything, mock.Anything).Return(settlement.Quote{}, nil)

	stats := newTestRunner(orders, nil, nil, settler).CompleteDeliveredOrders(context.Background())

	assert.Equal(t, uint64(1), stats.Failed.Load())
	assert.Equal(t, order.StatusDelivered, orders.get(due.ID).Status)
	settler.AssertNotCalled(t, "RecordCompletion", mock.Anything, mock.Anything)
}

func TestSyncOrderTracking(t *testing.T) {
	moving := orderAt(order.StatusPacked, 48*time.Hour)
	moving.TrackingCode = utils.StrPtr("TRK1")
	idle := orderAt(order.StatusOnDelivery, 48*time.Hour)
	idle.TrackingCode = utils.StrPtr("TRK2")
	untracked := orderAt(order.StatusPacked, 48*time.Hour)
	broken := orderAt(order.StatusShipped, 48*time.Hour)
	broken.TrackingCode = utils.StrPtr("TRK3")

	orders := newMemOrders(moving, idle, untracked, broken)
	rec := new(MockReconciler)
	rec.On("ReconcileOrder", mock.Anything, mock.MatchedBy(func(o *order.Order) bool { return o.ID == moving.ID })).Return(reconcile.OutcomeApplied, nil)
	rec.On("ReconcileOrder", mock.Anything, mock.MatchedBy(func(o *order.Order) bool { return o.ID == idle.ID })).Return(reconcile.OutcomeUnchanged, nil)
	rec.On("ReconcileOrder", mock.Anything, mock.MatchedBy(func(o *order.Order) bool { return o.ID == broken.ID })).Return(reconcile.Outcome(""), apperror.ErrExternalUnavailable)

	stats := newTestRunner(orders, nil, rec, nil).SyncOrderTracking(context.Background())

	assert.Equal(t, uint64(3), stats.Candidates.Load())
	assert.Equal(t, uint64(1), stats.Applied.Load())
	assert.Equal(t, uint64(1), stats.Skipped.Load())
	assert.Equal(t, uint64(1), stats.Failed.Load())
	rec.AssertNumberOfCalls(t, "ReconcileOrder", 3)
}

func TestSyncRefundTracking(t *testing.T) {
	packed := &refund.RefundRequest{ID: uuid.New(), Status: refund.StatusPacked, TrackingCode: utils.StrPtr("TRK1")}
	delivering := &refund.RefundRequest{ID: uuid.New(), Status: refund.StatusOnDelivery, TrackingCode: utils.StrPtr("TRK2")}
	created := &refund.RefundRequest{ID: uuid.New(), Status: refund.StatusCreated, TrackingCode: utils.StrPtr("TRK3")}

	refunds := newMemRefunds(packed, delivering, created)
	rec := new(MockReconciler)
	rec.On("ReconcileRefund", mock.Anything, mock.Anything).Return(reconcile.OutcomeApplied, nil)

	stats := newTestRunner(newMemOrders(), refunds, rec, nil).SyncRefundTracking(context.Background())

	assert.Equal(t, uint64(2), stats.Applied.Load())
	rec.AssertNumberOfCalls(t, "ReconcileRefund", 2)
}

func TestLoadFailureCountsOnce(t *testing.T) {
	orders := newMemOrders()
	orders.findErr = errors.New("db down")

	stats := newTestRunner(orders, nil, nil, nil).CancelWaitingOrders(context.Background())
	assert.Equal(t, uint64(1), stats.Failed.Load())
	assert.Equal(t, uint64(0), stats.Candidates.Load())
}

func TestRunOnce(t *testing.T) {
	stale := orderAt(order.StatusWaiting, time.Hour)
	orders := newMemOrders(stale)
	runner := newTestRunner(orders, nil, nil, nil)

	stats, err := runner.RunOnce(context.Background(), JobWaitingOrderCancel)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Applied.Load())

	_, err = runner.RunOnce(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRegister(t *testing.T) {
	sched := &fakeScheduler{}
	schedules := config.Schedules{
		WaitingCancel:    "@every 1m",
		PendingCancel:    "@every 2m",
		ProcessingCancel: "@every 3m",
		DeliveredDone:    "@every 4m",
		ShippedSettle:    "@every 5m",
		OrderTracking:    "@every 6m",
		RefundTracking:   "@every 7m",
	}

	runner := newTestRunner(newMemOrders(orderAt(order.StatusWaiting, time.Hour)), newMemRefunds(), nil, nil)
	require.NoError(t, runner.Register(sched, schedules))

	assert.Equal(t, []string{
		JobWaitingOrderCancel, JobPendingOrderCancel, JobProcessingOrderCancel,
		JobDeliveredOrderDone, JobShippedOrderSettle, JobOrderTrackingSync, JobRefundTrackingSync,
	}, sched.names)
	assert.Equal(t, "@every 5m", sched.specs[4])

	// the registered closure runs the job
	sched.runs[0](context.Background())
	cancelled, err := runner.orders.FindByStatusCreatedBefore(context.Background(), order.StatusCancelled, now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, cancelled, 1)
}

// Package reconcile aligns orders and refunds with the status the delivery
// carrier reports for their tracking code.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"fulfillment-be/internal/carrier"
	"fulfillment-be/internal/logger"
	"fulfillment-be/internal/order"
	"fulfillment-be/internal/refund"
	"fulfillment-be/internal/utils"

	"go.uber.org/zap"
)

type CarrierClient interface {
	GetOrderLog(ctx context.Context, trackingCode string) (*carrier.OrderLog, error)
}

type OrderSaver interface {
	Save(ctx context.Context, o *order.Order) error
}

type RefundSaver interface {
	Save(ctx context.Context, r *refund.RefundRequest) error
}

type Deps struct {
	Carrier     CarrierClient
	Orders      OrderSaver
	Refunds     RefundSaver
	SystemActor string
	Clock       func() time.Time
}

type Reconciler struct {
	carrier CarrierClient
	orders  OrderSaver
	refunds RefundSaver
	actor   string
	clock   func() time.Time
}

func New(d Deps) *Reconciler {
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Reconciler{
		carrier: d.Carrier,
		orders:  d.Orders,
		refunds: d.Refunds,
		actor:   d.SystemActor,
		clock:   clock,
	}
}

// ReconcileOrder applies the carrier's latest status to o and persists it.
// Every outcome other than APPLIED leaves o untouched. Running it again on an
// already reconciled order yields UNCHANGED.
func (r *Reconciler) ReconcileOrder(ctx context.Context, o *order.Order) (Outcome, error) {
	code := utils.PtrString(o.TrackingCode)
	log := logger.FromCtx(ctx).With(
		zap.String("order_id", o.ID.String()),
		zap.String("tracking_code", code),
		zap.String("status", o.Status.String()),
	)

	logs, outcome, err := r.fetch(ctx, code)
	if err != nil || outcome != "" {
		return outcome, err
	}

	target, outcome := NextOrderStatus(o.Status, logs)
	if outcome != OutcomeApplied {
		log.Debug("order tracking not applied", zap.String("outcome", string(outcome)))
		return outcome, nil
	}

	if err := o.ApplyCarrierStatus(target, r.actor, r.clock()); err != nil {
		return "", err
	}
	if err := r.orders.Save(ctx, o); err != nil {
		return "", fmt.Errorf("save order %s: %w", o.ID, err)
	}

	log.Info("order status synced with carrier", zap.String("new_status", target.String()))
	return OutcomeApplied, nil
}

func (r *Reconciler) ReconcileRefund(ctx context.Context, rf *refund.RefundRequest) (Outcome, error) {
	code := utils.PtrString(rf.TrackingCode)
	log := logger.FromCtx(ctx).With(
		zap.String("refund_id", rf.ID.String()),
		zap.String("tracking_code", code),
		zap.String("status", rf.Status.String()),
	)

	logs, outcome, err := r.fetch(ctx, code)
	if err != nil || outcome != "" {
		return outcome, err
	}

	target, outcome := NextRefundStatus(rf.Status, logs)
	if outcome != OutcomeApplied {
		log.Debug("refund tracking not applied", zap.String("outcome", string(outcome)))
		return outcome, nil
	}

	if err := rf.ApplyCarrierStatus(target, r.actor, r.clock()); err != nil {
		return "", err
	}
	if err := r.refunds.Save(ctx, rf); err != nil {
		return "", fmt.Errorf("save refund %s: %w", rf.ID, err)
	}

	log.Info("refund status synced with carrier", zap.String("new_status", target.String()))
	return OutcomeApplied, nil
}

// fetch returns the carrier logs, or a terminal outcome when there is nothing
// to map.
func (r *Reconciler) fetch(ctx context.Context, code string) ([]carrier.LogEntry, Outcome, error) {
	log := logger.FromCtx(ctx).With(zap.String("tracking_code", code))

	if code == "" {
		log.Debug("no tracking code")
		return nil, OutcomeNoResponse, nil
	}

	res, err := r.carrier.GetOrderLog(ctx, code)
	if err != nil {
		return nil, "", err
	}
	if res == nil {
		log.Info("no carrier response")
		return nil, OutcomeNoResponse, nil
	}
	if len(res.Logs) == 0 {
		log.Info("carrier returned no log entries")
		return nil, OutcomeNoLogs, nil
	}
	return res.Logs, "", nil
}

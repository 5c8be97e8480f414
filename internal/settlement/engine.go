// Package settlement pays an order's proceeds out to the selling shop.
package settlement

import (
	"context"
	"fmt"

	"fulfillment-be/internal/logger"
	"fulfillment-be/internal/order"
	"fulfillment-be/internal/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WalletClient interface {
	RequestPayment(ctx context.Context, req wallet.PaymentRequest) error
}

type ShopStatsClient interface {
	AdjustCompletionRate(ctx context.Context, shopID uuid.UUID, deltaPercent decimal.Decimal, actor string) (bool, error)
}

type Deps struct {
	Wallet          WalletClient
	ShopStats       ShopStatsClient
	FeeRate         decimal.Decimal
	CompletionDelta decimal.Decimal
	SystemActor     string
}

type Engine struct {
	wallet          WalletClient
	shopStats       ShopStatsClient
	feeRate         decimal.Decimal
	completionDelta decimal.Decimal
	actor           string
}

func NewEngine(d Deps) *Engine {
	return &Engine{
		wallet:          d.Wallet,
		shopStats:       d.ShopStats,
		feeRate:         d.FeeRate,
		completionDelta: d.CompletionDelta,
		actor:           d.SystemActor,
	}
}

// Settle requests the shop payout for o. The order id is the wallet
// transaction id, so repeating a settlement after a failed save is safe.
func (e *Engine) Settle(ctx context.Context, o *order.Order) (Quote, error) {
	q := QuoteOrder(o, e.feeRate)

	log := logger.FromCtx(ctx).With(
		zap.String("order_id", o.ID.String()),
		zap.String("shop_id", o.ShopID.String()),
		zap.String("total", q.Total.StringFixed(2)),
		zap.String("fee", q.Fee.StringFixed(2)),
		zap.String("amount_to_shop", q.AmountToShop.StringFixed(2)),
	)

	err := e.wallet.RequestPayment(ctx, wallet.PaymentRequest{
		Type:          wallet.TypeOrderSettlement,
		Amount:        q.AmountToShop,
		ShopID:        o.ShopID.String(),
		Description:   fmt.Sprintf("Settlement for order %s (total %s, fee %s)", o.Code, q.Total.StringFixed(2), q.Fee.StringFixed(2)),
		Status:        wallet.StatusSuccess,
		TransactionID: o.ID.String(),
		CreatedBy:     e.actor,
	})
	if err != nil {
		log.Error("settlement payment failed", zap.Error(err))
		return q, err
	}
	log.Info("settlement payment sent")
	return q, nil
}

// RecordCompletion bumps the shop's completion rate for a completed order.
// The stats API has no idempotency key, so callers invoke it only after the
// completion is persisted. Failures are logged and never returned.
func (e *Engine) RecordCompletion(ctx context.Context, o *order.Order) {
	log := logger.FromCtx(ctx).With(
		zap.String("order_id", o.ID.String()),
		zap.String("shop_id", o.ShopID.String()),
	)

	ok, err := e.shopStats.AdjustCompletionRate(ctx, o.ShopID, e.completionDelta, e.actor)
	switch {
	case err != nil:
		log.Warn("failed to update shop completion rate", zap.Error(err))
	case !ok:
		log.Warn("shop completion rate update was not accepted")
	}
}

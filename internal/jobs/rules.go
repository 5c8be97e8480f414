package jobs

import (
	"time"

	"fulfillment-be/internal/order"
	"fulfillment-be/internal/refund"
)

const (
	WaitingOrderTimeout    = 20 * time.Minute
	PendingOrderTimeout    = 48 * time.Hour
	ProcessingOrderTimeout = 24 * time.Hour
	DeliveredCompleteAfter = 72 * time.Hour
	ShippedSettleAfter     = 72 * time.Hour
)

var (
	trackableOrderStatuses  = []order.Status{order.StatusPacked, order.StatusOnDelivery, order.StatusShipped}
	trackableRefundStatuses = []refund.Status{refund.StatusPacked, refund.StatusOnDelivery}
)

// elapsed reports whether more than window has passed since t.
func elapsed(t *time.Time, window time.Duration, now time.Time) bool {
	return t != nil && t.Before(now.Add(-window))
}

// TimedOut reports whether o has sat in status for longer than timeout since
// it was created.
func TimedOut(o *order.Order, status order.Status, timeout time.Duration, now time.Time) bool {
	return o.Status == status && elapsed(&o.CreatedAt, timeout, now)
}

func DueForCompletion(o *order.Order, now time.Time) bool {
	return o.Status == order.StatusDelivered && elapsed(o.ActualDeliveryAt, DeliveredCompleteAfter, now)
}

func DueForSettlement(o *order.Order, now time.Time) bool {
	return o.Status == order.StatusShipped && elapsed(o.ShippedAt, ShippedSettleAfter, now)
}

package reconcile

import (
	"strings"

	"fulfillment-be/internal/carrier"
	"fulfillment-be/internal/order"
	"fulfillment-be/internal/refund"
)

type Outcome string

const (
	OutcomeApplied    Outcome = "APPLIED"
	OutcomeNoResponse Outcome = "NO_RESPONSE"
	OutcomeNoLogs     Outcome = "NO_LOGS"
	OutcomeUnmapped   Outcome = "UNMAPPED"
	OutcomeUnchanged  Outcome = "UNCHANGED"
)

// Carrier vocabulary, matched case-insensitively. The two tables differ on
// purpose: a return parcel is never "picked" from the customer's side.
var orderStatusMap = map[string]order.Status{
	"picked":     order.StatusShipped,
	"delivering": order.StatusOnDelivery,
	"delivered":  order.StatusDelivered,
}

var refundStatusMap = map[string]refund.Status{
	"delivering": refund.StatusOnDelivery,
	"delivered":  refund.StatusDelivered,
}

// LatestLog returns the entry with the greatest UpdatedDate. On ties the
// earliest entry in the slice wins.
func LatestLog(logs []carrier.LogEntry) (carrier.LogEntry, bool) {
	if len(logs) == 0 {
		return carrier.LogEntry{}, false
	}
	latest := logs[0]
	for _, l := range logs[1:] {
		if l.UpdatedDate.After(latest.UpdatedDate) {
			latest = l
		}
	}
	return latest, true
}

func normalize(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// NextOrderStatus maps the carrier's latest log entry onto an order status.
// The returned status is only meaningful with OutcomeApplied.
func NextOrderStatus(current order.Status, logs []carrier.LogEntry) (order.Status, Outcome) {
	latest, ok := LatestLog(logs)
	if !ok {
		return current, OutcomeNoLogs
	}
	target, ok := orderStatusMap[normalize(latest.Status)]
	if !ok {
		return current, OutcomeUnmapped
	}
	if target == current {
		return current, OutcomeUnchanged
	}
	return target, OutcomeApplied
}

func NextRefundStatus(current refund.Status, logs []carrier.LogEntry) (refund.Status, Outcome) {
	latest, ok := LatestLog(logs)
	if !ok {
		return current, OutcomeNoLogs
	}
	target, ok := refundStatusMap[normalize(latest.Status)]
	if !ok {
		return current, OutcomeUnmapped
	}
	if target == current {
		return current, OutcomeUnchanged
	}
	return target, OutcomeApplied
}

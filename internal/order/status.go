package order

import (
	"slices"

	"fulfillment-be/internal/apperror"
)

const entityName = "order"

// orderStateTransitions lists the targets reachable from each source status.
// Statuses missing from the table fall back to fallbackTargets.
var orderStateTransitions = map[Status][]Status{
	StatusWaiting:    {StatusPending, StatusCancelled},
	StatusPending:    {StatusProcessing, StatusCancelled, StatusWaiting},
	StatusProcessing: {StatusPacked},
	StatusPacked:     {StatusOnDelivery},
	StatusDelivered:  {StatusCompleted, StatusReturning},
	StatusReturning:  {StatusRefunded, StatusCompleted},
	// Unreachable while CANCELLED is terminal; kept for parity with the
	// legacy table.
	StatusCancelled: {StatusDelivered},
}

var fallbackTargets = []Status{StatusCompleted, StatusCancelled}

// terminalStatuses reject every further transition before any other rule runs.
var terminalStatuses = []Status{StatusCompleted, StatusCancelled}

// carrierTransitions covers moves reported by the delivery carrier, which is
// the system of record once a parcel has left the shop.
var carrierTransitions = map[Status][]Status{
	StatusPacked:     {StatusOnDelivery, StatusShipped, StatusDelivered},
	StatusOnDelivery: {StatusShipped, StatusDelivered},
	StatusShipped:    {StatusOnDelivery, StatusDelivered},
}

// timeoutCancellable lists statuses the timeout jobs may cancel.
var timeoutCancellable = []Status{StatusWaiting, StatusPending, StatusProcessing}

var trackingAttachable = []Status{StatusProcessing, StatusPacked, StatusOnDelivery}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusFailed:  {PaymentStatusPaid},
	PaymentStatusPaid:    {PaymentStatusRefunded},
}

// IsTerminal reports whether s accepts no further transitions.
func (s Status) IsTerminal() bool {
	return slices.Contains(terminalStatuses, s)
}

func (s Status) String() string {
	return string(s)
}

// CanTransition validates a manual or time-driven move from -> to.
func CanTransition(from, to Status) error {
	if from.IsTerminal() {
		return apperror.NewStateError(entityName, string(from), string(to), "terminal status")
	}
	if to == StatusCancelled && from == StatusDelivered {
		return apperror.NewStateError(entityName, string(from), string(to), "delivered orders cannot be cancelled")
	}

	allowed, ok := orderStateTransitions[from]
	if !ok {
		allowed = fallbackTargets
	}
	if !slices.Contains(allowed, to) {
		return apperror.NewStateError(entityName, string(from), string(to), "")
	}
	return nil
}

// CanApplyCarrierStatus validates a move reported by the carrier.
func CanApplyCarrierStatus(from, to Status) error {
	if from.IsTerminal() {
		return apperror.NewStateError(entityName, string(from), string(to), "terminal status")
	}
	if !slices.Contains(carrierTransitions[from], to) {
		return apperror.NewStateError(entityName, string(from), string(to), "not a carrier-managed transition")
	}
	return nil
}

func canTransitionPayment(from, to PaymentStatus) error {
	if !slices.Contains(paymentTransitions[from], to) {
		return apperror.NewStateError("payment", string(from), string(to), "")
	}
	return nil
}

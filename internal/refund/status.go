package refund

import (
	"slices"

	"fulfillment-be/internal/apperror"
)

const entityName = "refund"

var refundStateTransitions = map[Status][]Status{
	StatusCreated:    {StatusPacked, StatusRejected},
	StatusPacked:     {StatusOnDelivery, StatusDelivered, StatusRejected},
	StatusOnDelivery: {StatusDelivered},
	StatusDelivered:  {StatusRefunded, StatusRejected},
}

var terminalStatuses = []Status{StatusRefunded, StatusRejected}

// carrierTargets are the statuses the carrier may report for a return parcel.
var carrierTargets = []Status{StatusOnDelivery, StatusDelivered}

func (s Status) IsTerminal() bool {
	return slices.Contains(terminalStatuses, s)
}

func (s Status) String() string {
	return string(s)
}

func CanTransition(from, to Status) error {
	if from.IsTerminal() {
		return apperror.NewStateError(entityName, string(from), string(to), "terminal status")
	}
	if !slices.Contains(refundStateTransitions[from], to) {
		return apperror.NewStateError(entityName, string(from), string(to), "")
	}
	return nil
}

package refund

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusPacked     Status = "PACKED"
	StatusOnDelivery Status = "ON_DELIVERY"
	StatusDelivered  Status = "DELIVERED"
	StatusRefunded   Status = "REFUNDED"
	StatusRejected   Status = "REJECTED"
)

// RefundRequest is a customer return linked to an order by id. It owns its
// details and is persisted as a unit.
type RefundRequest struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	RequesterID uuid.UUID
	Status      Status
	Details     []RefundDetail

	RefundAmount decimal.Decimal
	ShippingFee  decimal.Decimal
	TotalAmount  decimal.Decimal

	TrackingCode     *string
	ProcessorID      *string
	ProcessedAt      *time.Time
	ActualDeliveryAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	UpdatedBy string

	Version int

	detailsDirty bool
}

type RefundDetail struct {
	ID            uuid.UUID
	RefundID      uuid.UUID
	OrderItemID   uuid.UUID
	Reason        string
	EvidenceImage *string
	UnitPrice     decimal.Decimal
}

type NewRefundParams struct {
	OrderID     uuid.UUID
	RequesterID uuid.UUID
	ShippingFee decimal.Decimal
	Details     []RefundDetail
}

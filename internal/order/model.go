package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusPacked     Status = "PACKED"
	StatusOnDelivery Status = "ON_DELIVERY"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusReturning  Status = "RETURNING"
	StatusRefunded   Status = "REFUNDED"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	PaymentMethodCOD     PaymentMethod = "COD"
	PaymentMethodPrepaid PaymentMethod = "PREPAID"
)

type Address struct {
	Name       string
	Phone      string
	Line1      string
	Line2      *string
	City       string
	Province   string
	PostalCode string
}

// Order is the unit of persistence for a customer purchase. Monetary fields
// are derived by Recalculate and status only moves through the transition
// methods; callers never assign them directly.
type Order struct {
	ID         uuid.UUID
	Code       string
	CustomerID uuid.UUID
	ShopID     uuid.UUID
	Items      []OrderItem

	Status        Status
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod

	Subtotal       decimal.Decimal
	ShippingFee    decimal.Decimal
	Discount       decimal.Decimal
	FinalAmount    decimal.Decimal
	CommissionRate decimal.Decimal
	CommissionFee  decimal.Decimal
	NetAmount      decimal.Decimal

	FromAddress  Address
	ToAddress    Address
	TrackingCode *string

	CreatedAt           time.Time
	EstimatedDeliveryAt *time.Time
	ShippedAt           *time.Time
	ActualDeliveryAt    *time.Time
	CompletedAt         *time.Time
	CancelledAt         *time.Time
	UpdatedAt           time.Time
	UpdatedBy           string
	DeletedAt           *time.Time

	// Version is the optimistic concurrency token checked by Save.
	Version int

	itemsDirty bool
}

type OrderItem struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	ProductID  uuid.UUID
	VariantID  *uuid.UUID
	Quantity   int
	UnitPrice  decimal.Decimal
	Discount   decimal.Decimal
	TotalPrice decimal.Decimal
}

type NewOrderParams struct {
	CustomerID          uuid.UUID
	ShopID              uuid.UUID
	PaymentMethod       PaymentMethod
	ShippingFee         decimal.Decimal
	Discount            decimal.Decimal
	CommissionRate      decimal.Decimal
	FromAddress         Address
	ToAddress           Address
	EstimatedDeliveryAt *time.Time
	Items               []OrderItem
}

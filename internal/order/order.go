package order

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"fulfillment-be/internal/apperror"
	"fulfillment-be/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const codePrefix = "ORD"

// DefaultCommissionRate applies when an order is created without a rate.
var DefaultCommissionRate = decimal.RequireFromString("0.05")

// NewOrderItem validates and prices a line item.
func NewOrderItem(productID uuid.UUID, variantID *uuid.UUID, quantity int, unitPrice, discount decimal.Decimal) (OrderItem, error) {
	return priceItem(OrderItem{
		ID:        uuid.New(),
		ProductID: productID,
		VariantID: variantID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Discount:  discount,
	})
}

// priceItem checks it and derives TotalPrice; a caller-supplied total is ignored.
func priceItem(it OrderItem) (OrderItem, error) {
	if it.ProductID == uuid.Nil {
		return OrderItem{}, apperror.Validation("order item: product id is required")
	}
	if it.Quantity <= 0 {
		return OrderItem{}, apperror.Validation("order item: quantity must be greater than zero, got %d", it.Quantity)
	}
	if it.UnitPrice.IsNegative() {
		return OrderItem{}, apperror.Validation("order item: unit price must not be negative")
	}
	gross := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
	if it.Discount.IsNegative() || it.Discount.GreaterThan(gross) {
		return OrderItem{}, apperror.Validation("order item: discount %s outside [0, %s]", it.Discount, gross)
	}
	it.TotalPrice = gross.Sub(it.Discount)
	return it, nil
}

// NewOrder creates an order in WAITING with its initial line items.
func NewOrder(p NewOrderParams, actor string, now time.Time) (*Order, error) {
	if p.CustomerID == uuid.Nil || p.ShopID == uuid.Nil {
		return nil, apperror.Validation("order: customer id and shop id are required")
	}
	if p.ShippingFee.IsNegative() || p.Discount.IsNegative() {
		return nil, apperror.Validation("order: shipping fee and discount must not be negative")
	}
	if p.CommissionRate.IsNegative() || p.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, apperror.Validation("order: commission rate %s outside [0, 1]", p.CommissionRate)
	}
	rate := p.CommissionRate
	if rate.IsZero() {
		rate = DefaultCommissionRate
	}
	method := p.PaymentMethod
	if method == "" {
		method = PaymentMethodPrepaid
	}

	o := &Order{
		ID:                  uuid.New(),
		Code:                utils.GenerateCode(codePrefix, now),
		CustomerID:          p.CustomerID,
		ShopID:              p.ShopID,
		Status:              StatusWaiting,
		PaymentStatus:       PaymentStatusPending,
		PaymentMethod:       method,
		ShippingFee:         p.ShippingFee,
		Discount:            p.Discount,
		CommissionRate:      rate,
		FromAddress:         p.FromAddress,
		ToAddress:           p.ToAddress,
		EstimatedDeliveryAt: p.EstimatedDeliveryAt,
		CreatedAt:           now,
	}
	if err := o.touch(actor, now); err != nil {
		return nil, err
	}
	if err := o.AddItems(p.Items, actor, now); err != nil {
		return nil, err
	}
	return o, nil
}

// Recalculate derives every monetary field from the line items.
func (o *Order) Recalculate() {
	subtotal := decimal.Zero
	for _, it := range o.Items {
		subtotal = subtotal.Add(it.TotalPrice)
	}
	o.Subtotal = subtotal
	o.FinalAmount = subtotal.Add(o.ShippingFee).Sub(o.Discount)
	o.CommissionFee = subtotal.Mul(o.CommissionRate).Round(2)
	o.NetAmount = o.FinalAmount.Sub(o.CommissionFee)
}

// AddItems bulk-adds items while the order is still being drafted. Either
// every item is added or none is.
func (o *Order) AddItems(items []OrderItem, actor string, now time.Time) error {
	if o.Status != StatusWaiting {
		return fmt.Errorf("%w: bulk add requires %s, order is %s", ErrItemsLocked, StatusWaiting, o.Status)
	}
	priced := make([]OrderItem, 0, len(items))
	for i, it := range items {
		p, err := priceItem(it)
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		priced = append(priced, p)
	}
	if err := o.touch(actor, now); err != nil {
		return err
	}
	for _, it := range priced {
		o.appendItem(it)
	}
	o.Recalculate()
	return nil
}

// AddItem adds a single item while the order is PENDING.
func (o *Order) AddItem(item OrderItem, actor string, now time.Time) error {
	if o.Status != StatusPending {
		return fmt.Errorf("%w: adding an item requires %s, order is %s", ErrItemsLocked, StatusPending, o.Status)
	}
	priced, err := priceItem(item)
	if err != nil {
		return err
	}
	if err := o.touch(actor, now); err != nil {
		return err
	}
	o.appendItem(priced)
	o.Recalculate()
	return nil
}

// RemoveItem drops a single item while the order is PENDING.
func (o *Order) RemoveItem(itemID uuid.UUID, actor string, now time.Time) error {
	if o.Status != StatusPending {
		return fmt.Errorf("%w: removing an item requires %s, order is %s", ErrItemsLocked, StatusPending, o.Status)
	}
	idx := slices.IndexFunc(o.Items, func(it OrderItem) bool { return it.ID == itemID })
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if err := o.touch(actor, now); err != nil {
		return err
	}
	o.Items = slices.Delete(o.Items, idx, idx+1)
	o.itemsDirty = true
	o.Recalculate()
	return nil
}

// ItemsDirty reports whether the line items changed since the order was loaded.
func (o *Order) ItemsDirty() bool {
	return o.itemsDirty
}

func (o *Order) appendItem(it OrderItem) {
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	it.OrderID = o.ID
	o.Items = append(o.Items, it)
	o.itemsDirty = true
}

// TransitionTo moves the order along the status table. Requesting the
// current status is a no-op.
func (o *Order) TransitionTo(target Status, actor string, now time.Time) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if o.Status == target && !o.Status.IsTerminal() {
		return nil
	}
	if err := CanTransition(o.Status, target); err != nil {
		return err
	}
	o.setStatus(target, now)
	return o.touch(actor, now)
}

func (o *Order) Confirm(actor string, now time.Time) error {
	return o.TransitionTo(StatusPending, actor, now)
}

func (o *Order) Cancel(actor string, now time.Time) error {
	return o.TransitionTo(StatusCancelled, actor, now)
}

func (o *Order) StartProcessing(actor string, now time.Time) error {
	return o.TransitionTo(StatusProcessing, actor, now)
}

func (o *Order) Pack(actor string, now time.Time) error {
	return o.TransitionTo(StatusPacked, actor, now)
}

func (o *Order) Complete(actor string, now time.Time) error {
	return o.TransitionTo(StatusCompleted, actor, now)
}

func (o *Order) StartReturn(actor string, now time.Time) error {
	return o.TransitionTo(StatusReturning, actor, now)
}

func (o *Order) MarkRefunded(actor string, now time.Time) error {
	return o.TransitionTo(StatusRefunded, actor, now)
}

// CancelOnTimeout is the system cancel path used by the timeout jobs. It may
// cancel PROCESSING orders, which the manual table does not allow.
func (o *Order) CancelOnTimeout(actor string, now time.Time) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if o.Status.IsTerminal() {
		return apperror.NewStateError(entityName, string(o.Status), string(StatusCancelled), "terminal status")
	}
	if !slices.Contains(timeoutCancellable, o.Status) {
		return apperror.NewStateError(entityName, string(o.Status), string(StatusCancelled), "not cancellable on timeout")
	}
	o.setStatus(StatusCancelled, now)
	return o.touch(actor, now)
}

// ApplyCarrierStatus moves the order to the status reported by the carrier.
// Reaching DELIVERED stamps the delivery time and settles COD payment.
func (o *Order) ApplyCarrierStatus(target Status, actor string, now time.Time) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if o.Status == target {
		return nil
	}
	if err := CanApplyCarrierStatus(o.Status, target); err != nil {
		return err
	}
	o.setStatus(target, now)
	if target == StatusDelivered && o.PaymentMethod == PaymentMethodCOD && o.PaymentStatus != PaymentStatusPaid {
		if err := canTransitionPayment(o.PaymentStatus, PaymentStatusPaid); err == nil {
			o.PaymentStatus = PaymentStatusPaid
		}
	}
	return o.touch(actor, now)
}

func (o *Order) AttachTrackingCode(code, actor string, now time.Time) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return apperror.Validation("order: tracking code is required")
	}
	if !slices.Contains(trackingAttachable, o.Status) {
		return apperror.NewStateError(entityName, string(o.Status), string(o.Status), "tracking code cannot be attached")
	}
	if err := o.touch(actor, now); err != nil {
		return err
	}
	o.TrackingCode = &code
	return nil
}

func (o *Order) MarkPaid(actor string, now time.Time) error {
	return o.setPaymentStatus(PaymentStatusPaid, actor, now)
}

func (o *Order) MarkPaymentFailed(actor string, now time.Time) error {
	return o.setPaymentStatus(PaymentStatusFailed, actor, now)
}

func (o *Order) MarkPaymentRefunded(actor string, now time.Time) error {
	return o.setPaymentStatus(PaymentStatusRefunded, actor, now)
}

func (o *Order) setPaymentStatus(target PaymentStatus, actor string, now time.Time) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if o.PaymentStatus == target {
		return nil
	}
	if err := canTransitionPayment(o.PaymentStatus, target); err != nil {
		return err
	}
	o.PaymentStatus = target
	return o.touch(actor, now)
}

// SoftDelete hides the order; rows are never removed.
func (o *Order) SoftDelete(actor string, now time.Time) error {
	if err := o.touch(actor, now); err != nil {
		return err
	}
	if o.DeletedAt == nil {
		o.DeletedAt = &now
	}
	return nil
}

func (o *Order) setStatus(target Status, now time.Time) {
	o.Status = target
	switch target {
	case StatusShipped:
		o.ShippedAt = &now
	case StatusDelivered:
		o.ActualDeliveryAt = &now
	case StatusCompleted:
		o.CompletedAt = &now
	case StatusCancelled:
		if o.CancelledAt == nil {
			o.CancelledAt = &now
		}
	}
}

func (o *Order) touch(actor string, now time.Time) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	o.UpdatedAt = now
	o.UpdatedBy = strings.TrimSpace(actor)
	return nil
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("%w: %w", apperror.ErrValidation, ErrActorRequired)
	}
	return nil
}

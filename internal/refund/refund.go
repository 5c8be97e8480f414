package refund

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"fulfillment-be/internal/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func NewRefundDetail(orderItemID uuid.UUID, reason string, evidenceImage *string, unitPrice decimal.Decimal) (RefundDetail, error) {
	if orderItemID == uuid.Nil {
		return RefundDetail{}, apperror.Validation("refund detail: order item id is required")
	}
	if unitPrice.IsNegative() {
		return RefundDetail{}, apperror.Validation("refund detail: unit price must not be negative")
	}
	return RefundDetail{
		ID:            uuid.New(),
		OrderItemID:   orderItemID,
		Reason:        strings.TrimSpace(reason),
		EvidenceImage: evidenceImage,
		UnitPrice:     unitPrice,
	}, nil
}

// NewRefundRequest opens a refund in CREATED. The result always passes Validate.
func NewRefundRequest(p NewRefundParams, actor string, now time.Time) (*RefundRequest, error) {
	r := &RefundRequest{
		ID:          uuid.New(),
		OrderID:     p.OrderID,
		RequesterID: p.RequesterID,
		Status:      StatusCreated,
		ShippingFee: p.ShippingFee,
		CreatedAt:   now,
	}
	if err := r.touch(actor, now); err != nil {
		return nil, err
	}
	for _, d := range p.Details {
		if err := r.AddDetail(d, actor, now); err != nil {
			return nil, err
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// AddDetail attaches one refunded line. Each order item may be refunded once.
func (r *RefundRequest) AddDetail(d RefundDetail, actor string, now time.Time) error {
	if r.Status != StatusCreated {
		return fmt.Errorf("%w: refund is %s", ErrDetailsLocked, r.Status)
	}
	if d.OrderItemID == uuid.Nil {
		return apperror.Validation("refund detail: order item id is required")
	}
	if d.UnitPrice.IsNegative() {
		return apperror.Validation("refund detail: unit price must not be negative")
	}
	if slices.ContainsFunc(r.Details, func(x RefundDetail) bool { return x.OrderItemID == d.OrderItemID }) {
		return fmt.Errorf("%w: %s", ErrDuplicateDetail, d.OrderItemID)
	}
	if err := r.touch(actor, now); err != nil {
		return err
	}

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.RefundID = r.ID
	r.Details = append(r.Details, d)
	r.detailsDirty = true
	r.Recalculate()
	return nil
}

func (r *RefundRequest) Recalculate() {
	amount := decimal.Zero
	for _, d := range r.Details {
		amount = amount.Add(d.UnitPrice)
	}
	r.RefundAmount = amount
	r.TotalAmount = amount.Add(r.ShippingFee)
}

// Validate reports whether the refund is well formed.
func (r *RefundRequest) Validate() error {
	switch {
	case r.OrderID == uuid.Nil:
		return apperror.Validation("refund: order id is required")
	case r.RequesterID == uuid.Nil:
		return apperror.Validation("refund: requester id is required")
	case len(r.Details) == 0:
		return apperror.Validation("refund: at least one detail is required")
	case r.ShippingFee.IsNegative(), r.RefundAmount.IsNegative(), r.TotalAmount.IsNegative():
		return apperror.Validation("refund: amounts must not be negative")
	}
	return nil
}

func (r *RefundRequest) DetailsDirty() bool {
	return r.detailsDirty
}

// TransitionTo moves the refund along its status table. Requesting the
// current non-terminal status is a no-op.
func (r *RefundRequest) TransitionTo(target Status, actor string, now time.Time) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if r.Status == target && !r.Status.IsTerminal() {
		return nil
	}
	if err := CanTransition(r.Status, target); err != nil {
		return err
	}
	r.setStatus(target, now)
	return r.touch(actor, now)
}

func (r *RefundRequest) Pack(actor string, now time.Time) error {
	return r.TransitionTo(StatusPacked, actor, now)
}

func (r *RefundRequest) Reject(processor string, now time.Time) error {
	return r.resolve(StatusRejected, processor, now)
}

func (r *RefundRequest) MarkRefunded(processor string, now time.Time) error {
	return r.resolve(StatusRefunded, processor, now)
}

func (r *RefundRequest) resolve(target Status, processor string, now time.Time) error {
	if err := r.TransitionTo(target, processor, now); err != nil {
		return err
	}
	p := strings.TrimSpace(processor)
	r.ProcessorID = &p
	r.ProcessedAt = &now
	return nil
}

// ApplyCarrierStatus applies a status reported by the carrier for the return
// parcel. Reaching DELIVERED stamps the delivery time.
func (r *RefundRequest) ApplyCarrierStatus(target Status, actor string, now time.Time) error {
	if !slices.Contains(carrierTargets, target) {
		return apperror.NewStateError(entityName, string(r.Status), string(target), "not a carrier-managed status")
	}
	return r.TransitionTo(target, actor, now)
}

func (r *RefundRequest) AttachTrackingCode(code, actor string, now time.Time) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return apperror.Validation("refund: tracking code is required")
	}
	if r.Status.IsTerminal() {
		return apperror.NewStateError(entityName, string(r.Status), string(r.Status), "tracking code cannot be attached")
	}
	if err := r.touch(actor, now); err != nil {
		return err
	}
	r.TrackingCode = &code
	return nil
}

func (r *RefundRequest) setStatus(target Status, now time.Time) {
	r.Status = target
	if target == StatusDelivered {
		r.ActualDeliveryAt = &now
	}
}

func (r *RefundRequest) touch(actor string, now time.Time) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	r.UpdatedAt = now
	r.UpdatedBy = strings.TrimSpace(actor)
	return nil
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("%w: %w", apperror.ErrValidation, ErrActorRequired)
	}
	return nil
}

package refund

import (
	"errors"
	"fmt"

	"fulfillment-be/internal/apperror"
)

var (
	ErrRefundNotFound = fmt.Errorf("refund: %w", apperror.ErrNotFound)
	ErrStaleVersion   = fmt.Errorf("refund: %w", apperror.ErrConflict)

	ErrActorRequired   = errors.New("refund: actor is required")
	ErrDuplicateDetail = errors.New("refund: order item already has a refund detail")
	ErrDetailsLocked   = errors.New("refund: details can no longer be changed")
)

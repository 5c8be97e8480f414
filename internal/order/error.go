package order

import (
	"errors"
	"fmt"

	"fulfillment-be/internal/apperror"
)

var (
	ErrOrderNotFound = fmt.Errorf("order: %w", apperror.ErrNotFound)
	ErrItemNotFound  = fmt.Errorf("order item: %w", apperror.ErrNotFound)
	ErrStaleVersion  = fmt.Errorf("order: %w", apperror.ErrConflict)

	ErrActorRequired = errors.New("order: actor is required")
	ErrItemsLocked   = errors.New("order: items can no longer be changed")
)

package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/clinicflow/clinic/internal/domain/catalog"
)

// ErrItemNotFound is returned by Decrement when no stocked item matches.
var ErrItemNotFound = errors.New("inventory item not found")

type Repository interface {
	AppendEvent(ctx context.Context, e *StockOutEvent) error
	ListEvents(ctx context.Context, limit, offset int) ([]*StockOutEvent, int, error)
	// Decrement lowers the item's stock by qty, flooring at zero, in a single
	// statement and returns the remaining quantity. The item is matched by
	// id when given, else by name.
	Decrement(ctx context.Context, category catalog.Category, itemID *uuid.UUID, name string, qty int) (int, error)
}

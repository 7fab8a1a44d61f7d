package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("catalog entry not found")

// Reader is the read-only query contract over the clinic catalogs.
type Reader interface {
	Service(ctx context.Context, id uuid.UUID) (*Service, error)
	ItemByID(ctx context.Context, category Category, id uuid.UUID) (*Item, error)
	ItemByName(ctx context.Context, category Category, name string) (*Item, error)
	Items(ctx context.Context, category Category) ([]*Item, error)
	Dentists(ctx context.Context) ([]*Dentist, error)
	ToothConditions(ctx context.Context) ([]*ToothCondition, error)
}

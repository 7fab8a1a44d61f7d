package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ItemFinder is the part of Reader needed to resolve stocked items.
type ItemFinder interface {
	ItemByID(ctx context.Context, category Category, id uuid.UUID) (*Item, error)
	ItemByName(ctx context.Context, category Category, name string) (*Item, error)
}

// ResolveItem looks an item up by id when one is given and falls back to a
// case-insensitive name match. It returns ErrNotFound when neither matches.
func ResolveItem(ctx context.Context, f ItemFinder, category Category, id *uuid.UUID, name string) (*Item, error) {
	if id != nil && *id != uuid.Nil {
		it, err := f.ItemByID(ctx, category, *id)
		if err == nil {
			return it, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrNotFound
	}
	return f.ItemByName(ctx, category, strings.TrimSpace(name))
}

package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinic/internal/domain/catalog"
	"github.com/clinicflow/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) AppendEvent(ctx context.Context, e *StockOutEvent) error {
	e.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO stock_out_events (id, reference_code, item_name, category, quantity, actor, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		e.ID, e.ReferenceCode, e.ItemName, string(e.Category), e.Quantity, e.Actor, e.Notes).
		Scan(&e.CreatedAt)
}

func (r *repoPG) ListEvents(ctx context.Context, limit, offset int) ([]*StockOutEvent, int, error) {
	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM stock_out_events`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, reference_code, item_name, category, quantity, actor, notes, created_at
		FROM stock_out_events ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*StockOutEvent
	for rows.Next() {
		var e StockOutEvent
		var category string
		if err := rows.Scan(&e.ID, &e.ReferenceCode, &e.ItemName, &category, &e.Quantity,
			&e.Actor, &e.Notes, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Category = catalog.Category(category)
		out = append(out, &e)
	}
	return out, total, rows.Err()
}

func (r *repoPG) Decrement(ctx context.Context, category catalog.Category, itemID *uuid.UUID, name string, qty int) (int, error) {
	if !category.Valid() {
		return 0, fmt.Errorf("unknown inventory category %q", category)
	}
	table := category.Table()
	var row pgx.Row
	if itemID != nil && *itemID != uuid.Nil {
		row = db.Conn(ctx, r.pool).QueryRow(ctx, `
			UPDATE `+table+` SET quantity = GREATEST(quantity - $2, 0), updated_at = NOW()
			WHERE id = $1 RETURNING quantity`, *itemID, qty)
	} else {
		row = db.Conn(ctx, r.pool).QueryRow(ctx, `
			UPDATE `+table+` SET quantity = GREATEST(quantity - $2, 0), updated_at = NOW()
			WHERE id = (SELECT id FROM `+table+` WHERE lower(name) = lower($1) ORDER BY name LIMIT 1)
			RETURNING quantity`, name, qty)
	}
	var remaining int
	if err := row.Scan(&remaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrItemNotFound
		}
		return 0, err
	}
	return remaining, nil
}

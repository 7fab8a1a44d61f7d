package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinic/internal/platform/db"
)

type readerPG struct{ pool *pgxpool.Pool }

func NewReaderPG(pool *pgxpool.Pool) Reader { return &readerPG{pool: pool} }

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *readerPG) Service(ctx context.Context, id uuid.UUID) (*Service, error) {
	var s Service
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, name, category, fee FROM services WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Category, &s.Fee)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *readerPG) scanItem(category Category, row pgx.Row) (*Item, error) {
	it := Item{Category: category}
	if err := row.Scan(&it.ID, &it.Name, &it.UnitCost, &it.Quantity, &it.Supplier); err != nil {
		return nil, notFound(err)
	}
	return &it, nil
}

func itemQuery(category Category, where string) (string, error) {
	if !category.Valid() {
		return "", fmt.Errorf("unknown inventory category %q", category)
	}
	return `SELECT id, name, unit_cost, quantity, supplier FROM ` + category.Table() + ` ` + where, nil
}

func (r *readerPG) ItemByID(ctx context.Context, category Category, id uuid.UUID) (*Item, error) {
	q, err := itemQuery(category, `WHERE id = $1`)
	if err != nil {
		return nil, err
	}
	return r.scanItem(category, db.Conn(ctx, r.pool).QueryRow(ctx, q, id))
}

func (r *readerPG) ItemByName(ctx context.Context, category Category, name string) (*Item, error) {
	q, err := itemQuery(category, `WHERE lower(name) = lower($1) ORDER BY name LIMIT 1`)
	if err != nil {
		return nil, err
	}
	return r.scanItem(category, db.Conn(ctx, r.pool).QueryRow(ctx, q, name))
}

func (r *readerPG) Items(ctx context.Context, category Category) ([]*Item, error) {
	q, err := itemQuery(category, `ORDER BY name`)
	if err != nil {
		return nil, err
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		it, err := r.scanItem(category, rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *readerPG) Dentists(ctx context.Context) ([]*Dentist, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, first_name, middle_name, last_name FROM personnel
		WHERE lower(role) = 'dentist' ORDER BY last_name, first_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Dentist
	for rows.Next() {
		var d Dentist
		if err := rows.Scan(&d.ID, &d.FirstName, &d.MiddleName, &d.LastName); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (r *readerPG) ToothConditions(ctx context.Context) ([]*ToothCondition, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, name FROM tooth_conditions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ToothCondition
	for rows.Next() {
		var c ToothCondition
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

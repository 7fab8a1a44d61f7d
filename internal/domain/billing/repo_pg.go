package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinic/internal/platform/db"
)

type invoiceRepoPG struct{ pool *pgxpool.Pool }

func NewInvoiceRepoPG(pool *pgxpool.Pool) InvoiceRepository { return &invoiceRepoPG{pool: pool} }

const invoiceCols = `id, patient_id, appointment_id, plan_id, total_amount, payable_amount,
	payment_status, created_at`

func (r *invoiceRepoPG) scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.PatientID, &inv.AppointmentID, &inv.PlanID, &inv.TotalAmount,
		&inv.PayableAmount, &inv.PaymentStatus, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepoPG) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO invoices (id, patient_id, appointment_id, plan_id, total_amount,
			payable_amount, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		inv.ID, inv.PatientID, inv.AppointmentID, inv.PlanID, inv.TotalAmount,
		inv.PayableAmount, inv.PaymentStatus).Scan(&inv.CreatedAt)
}

func (r *invoiceRepoPG) AddItem(ctx context.Context, item *LineItem) error {
	table := item.Category.Table()
	if table == "" {
		return fmt.Errorf("unknown invoice line category %q", item.Category)
	}
	item.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO `+table+` (id, invoice_id, reference_id, description, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.ID, item.InvoiceID, item.ReferenceID, item.Description, item.Quantity,
		item.UnitPrice, item.Subtotal)
	return err
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.scanInvoice(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+invoiceCols+` FROM invoices WHERE id = $1`, id))
}

func (r *invoiceRepoPG) Items(ctx context.Context, invoiceID uuid.UUID) ([]LineItem, error) {
	parts := make([]string, 0, len(LineCategories))
	for i, c := range LineCategories {
		parts = append(parts, fmt.Sprintf(`SELECT %d AS grp, '%s' AS category, id, invoice_id,
			reference_id, description, quantity, unit_price, subtotal
			FROM %s WHERE invoice_id = $1`, i, c, c.Table()))
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		strings.Join(parts, " UNION ALL ")+` ORDER BY grp, description`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LineItem
	for rows.Next() {
		var (
			it       LineItem
			grp      int
			category string
		)
		if err := rows.Scan(&grp, &category, &it.ID, &it.InvoiceID, &it.ReferenceID,
			&it.Description, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, err
		}
		it.Category = LineCategory(category)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *invoiceRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error) {
	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM invoices WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+invoiceCols+` FROM invoices
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Invoice
	for rows.Next() {
		inv, err := r.scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

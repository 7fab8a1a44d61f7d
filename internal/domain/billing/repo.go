package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("invoice not found")

type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) error
	AddItem(ctx context.Context, item *LineItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	Items(ctx context.Context, invoiceID uuid.UUID) ([]LineItem, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error)
}

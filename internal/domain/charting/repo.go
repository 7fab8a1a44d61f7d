package charting

import (
	"context"

	"github.com/google/uuid"
)

type ToothRecordRepository interface {
	// Upsert writes the record, replacing any earlier one for the same
	// patient and tooth.
	Upsert(ctx context.Context, r *ToothRecord) error
	// Delete removes the stored record for the tooth, if any.
	Delete(ctx context.Context, patientID uuid.UUID, toothNumber int) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*ToothRecord, error)
}

package clinicalnote

import (
	"context"

	"github.com/google/uuid"
)

type NoteRepository interface {
	// Create stores the note with details as its JSON payload.
	Create(ctx context.Context, n *Note, details []byte) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Note, int, error)
}

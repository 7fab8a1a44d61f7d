package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("appointment not found")

type AppointmentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListForPractitioner(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]*Appointment, error)
	StatusIDByName(ctx context.Context, name string) (int, error)
	// SetStatus writes statusID unless the row already carries it and
	// reports whether a row changed.
	SetStatus(ctx context.Context, id uuid.UUID, statusID int) (bool, error)
}

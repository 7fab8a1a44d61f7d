package treatment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("treatment plan not found")

type PlanRepository interface {
	Create(ctx context.Context, p *Plan) error
	GetByID(ctx context.Context, id uuid.UUID) (*Plan, error)
	Update(ctx context.Context, p *Plan) error
	// TransitionStatus sets status when the current status is one of from
	// and reports whether a row changed.
	TransitionStatus(ctx context.Context, id uuid.UUID, status string, from []string) (bool, error)
	ActiveForPatient(ctx context.Context, patientID uuid.UUID) (*Plan, error)
	AddLine(ctx context.Context, l *ServiceLine) error
	Lines(ctx context.Context, planID uuid.UUID) ([]ServiceLine, error)
}

package treatment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "Pending"
	StatusOngoing   = "Ongoing"
	StatusCompleted = "Completed"
	StatusCancelled = "Cancelled"
)

const (
	MinTooth = 1
	MaxTooth = 32
)

var validPlanStatuses = map[string]bool{
	StatusPending: true, StatusOngoing: true, StatusCompleted: true, StatusCancelled: true,
}

var planTransitions = map[string]map[string]bool{
	StatusPending: {StatusOngoing: true, StatusCompleted: true, StatusCancelled: true},
	StatusOngoing: {StatusCompleted: true, StatusCancelled: true},
}

func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// CanTransition reports whether a plan may move between statuses. Staying in
// the same status is always allowed.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	return planTransitions[from][to]
}

type Plan struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	PatientID      uuid.UUID     `db:"patient_id" json:"patient_id"`
	PractitionerID uuid.UUID     `db:"practitioner_id" json:"practitioner_id"`
	Name           string        `db:"name" json:"name"`
	Description    *string       `db:"description" json:"description,omitempty"`
	Status         string        `db:"status" json:"status"`
	Lines          []ServiceLine `json:"lines"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// Persisted reports whether the plan already has a storage row.
func (p *Plan) Persisted() bool { return p.ID != uuid.Nil }

func (p *Plan) HasService(serviceID uuid.UUID) bool {
	for _, l := range p.Lines {
		if l.ServiceID == serviceID {
			return true
		}
	}
	return false
}

// PendingLines returns the lines not yet written to storage.
func (p *Plan) PendingLines() []*ServiceLine {
	var out []*ServiceLine
	for i := range p.Lines {
		if p.Lines[i].ID == uuid.Nil {
			out = append(out, &p.Lines[i])
		}
	}
	return out
}

// ServiceLine is one procedure of a plan. EstimatedCost is null when the
// catalog fee applies.
type ServiceLine struct {
	ID              uuid.UUID           `db:"id" json:"id"`
	PlanID          uuid.UUID           `db:"plan_id" json:"plan_id"`
	ServiceID       uuid.UUID           `db:"service_id" json:"service_id"`
	ServiceName     string              `db:"service_name" json:"service_name"`
	ServiceCategory string              `db:"service_category" json:"service_category"`
	ToothNumber     *int                `db:"tooth_number" json:"tooth_number,omitempty"`
	EstimatedCost   decimal.NullDecimal `db:"estimated_cost" json:"estimated_cost"`
	Priority        int                 `db:"priority" json:"priority"`
	Status          string              `db:"status" json:"status"`
}

func ValidTooth(n int) bool { return n >= MinTooth && n <= MaxTooth }

func (l *ServiceLine) Validate() error {
	if l.ServiceID == uuid.Nil {
		return fmt.Errorf("%w: service_id is required", ErrInvalidLine)
	}
	if l.EstimatedCost.Valid && l.EstimatedCost.Decimal.IsNegative() {
		return fmt.Errorf("%w: estimated cost must not be negative", ErrInvalidLine)
	}
	if l.ToothNumber != nil && !ValidTooth(*l.ToothNumber) {
		return fmt.Errorf("%w: tooth number %d outside %d-%d", ErrInvalidLine, *l.ToothNumber, MinTooth, MaxTooth)
	}
	return nil
}

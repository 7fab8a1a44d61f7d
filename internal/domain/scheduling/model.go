package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusScheduled   = "Scheduled"
	StatusConfirmed   = "Confirmed"
	StatusCompleted   = "Completed"
	StatusCancelled   = "Cancelled"
	StatusRescheduled = "Rescheduled"
)

type Appointment struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	PractitionerID uuid.UUID `db:"practitioner_id" json:"practitioner_id"`
	ServiceID      uuid.UUID `db:"service_id" json:"service_id"`
	StartsAt       time.Time `db:"starts_at" json:"starts_at"`
	StatusID       int       `db:"status_id" json:"status_id"`
	Status         string    `db:"status" json:"status"`
	Notes          *string   `db:"notes" json:"notes,omitempty"`
}

// Open reports whether the appointment can still be worked on.
func (a *Appointment) Open() bool {
	return !IsTerminal(a.Status)
}

// IsTerminal reports whether no transition leaves the status.
func IsTerminal(status string) bool {
	return strings.EqualFold(status, StatusCompleted) || strings.EqualFold(status, StatusCancelled)
}

var transitions = map[string][]string{
	StatusScheduled:   {StatusConfirmed, StatusCompleted, StatusCancelled, StatusRescheduled},
	StatusConfirmed:   {StatusCompleted, StatusCancelled, StatusRescheduled},
	StatusRescheduled: {StatusConfirmed, StatusCompleted, StatusCancelled},
}

func canonical(status string) string {
	for _, s := range []string{StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusRescheduled} {
		if strings.EqualFold(s, strings.TrimSpace(status)) {
			return s
		}
	}
	return status
}

// CanTransition reports whether an appointment may move from one status to
// another. Completed and Cancelled are final.
func CanTransition(from, to string) bool {
	from, to = canonical(from), canonical(to)
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

package clinicalnote

import (
	"time"

	"github.com/google/uuid"
)

const StatusCompleted = "Completed"

// Note is the clinical record of one visit.
type Note struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	PractitionerID uuid.UUID  `db:"practitioner_id" json:"practitioner_id"`
	AppointmentID  *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	PlanID         *uuid.UUID `db:"plan_id" json:"plan_id,omitempty"`
	VisitAt        time.Time  `db:"visit_at" json:"visit_at"`
	ChiefComplaint string     `db:"chief_complaint" json:"chief_complaint"`
	Diagnosis      string     `db:"diagnosis" json:"diagnosis"`
	TreatmentRef   string     `db:"treatment_ref" json:"treatment_ref"`
	Details        Details    `db:"details" json:"details"`
	Status         string     `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Details is stored as a single JSON payload next to the note row.
type Details struct {
	WhatWasDone string   `json:"what_was_done"`
	Medicines   []string `json:"medicines"`
	HomeCare    HomeCare `json:"home_care"`
	Notes       string   `json:"notes"`
}

type HomeCare struct {
	WhatToDo     []string `json:"what_to_do"`
	WhatToAvoid  []string `json:"what_to_avoid"`
	WarningSigns []string `json:"warning_signs"`
}

// CloseResult reports which records a close actually changed.
type CloseResult struct {
	PlanUpdated        bool `json:"plan_updated"`
	AppointmentUpdated bool `json:"appointment_updated"`
}

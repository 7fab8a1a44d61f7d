package encounter

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/clinic/internal/domain/charting"
	"github.com/clinicflow/clinic/internal/domain/clinicalnote"
	"github.com/clinicflow/clinic/internal/domain/inventory"
	"github.com/clinicflow/clinic/internal/domain/prescription"
	"github.com/clinicflow/clinic/internal/domain/treatment"
)

// Step is a stage of the encounter workflow.
type Step int

const (
	StepAppointment Step = iota
	StepTreatmentPlan
	StepCharting
	StepPrescriptions
	StepMaterials
	StepNote
)

// StepCount is the number of workflow steps.
const StepCount = int(StepNote) + 1

var stepNames = [...]string{
	StepAppointment:   "appointment",
	StepTreatmentPlan: "treatment_plan",
	StepCharting:      "charting",
	StepPrescriptions: "prescriptions",
	StepMaterials:     "materials",
	StepNote:          "note",
}

func (s Step) String() string {
	if s < StepAppointment || s > StepNote {
		return "unknown"
	}
	return stepNames[s]
}

// DraftPrescription is a prescription held by the draft. Merged records that
// the prescription added to the material list.
type DraftPrescription struct {
	prescription.Prescription
	Merged bool `json:"merged"`
}

// Draft is everything one practitioner has entered for an encounter that is
// not committed yet.
type Draft struct {
	SessionID      uuid.UUID                    `json:"session_id"`
	PractitionerID uuid.UUID                    `json:"practitioner_id"`
	Step           Step                         `json:"step"`
	AppointmentID  uuid.UUID                    `json:"appointment_id"`
	PatientID      uuid.UUID                    `json:"patient_id"`
	ServiceID      uuid.UUID                    `json:"service_id"`
	Plan           treatment.Plan               `json:"plan"`
	Chart          map[int]charting.ToothRecord `json:"chart"`
	Prescriptions  []DraftPrescription          `json:"prescriptions"`
	Materials      []inventory.MaterialUsage    `json:"materials"`
	Note           clinicalnote.Note            `json:"note"`
	UpdatedAt      time.Time                    `json:"updated_at"`
}

// NewDraft starts an empty encounter for practitionerID.
func NewDraft(practitionerID uuid.UUID) *Draft {
	d := &Draft{SessionID: uuid.New(), PractitionerID: practitionerID}
	d.Reset()
	return d
}

// Reset returns the draft to its initial state, keeping its session and
// practitioner.
func (d *Draft) Reset() {
	*d = Draft{
		SessionID:      d.SessionID,
		PractitionerID: d.PractitionerID,
		Chart:          make(map[int]charting.ToothRecord),
		UpdatedAt:      time.Now().UTC(),
	}
}

func (d *Draft) HasPatient() bool { return d.PatientID != uuid.Nil }

func (d *Draft) touch() { d.UpdatedAt = time.Now().UTC() }

package clinicalnote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PlanCompleter closes treatment plans.
type PlanCompleter interface {
	MarkCompleted(ctx context.Context, planID uuid.UUID) (bool, error)
}

// AppointmentCompleter closes appointments.
type AppointmentCompleter interface {
	Complete(ctx context.Context, appointmentID uuid.UUID) (bool, error)
}

// Finalizer writes the encounter note and moves the plan and appointment to
// their terminal status.
type Finalizer struct {
	notes        NoteRepository
	plans        PlanCompleter
	appointments AppointmentCompleter
	logger       zerolog.Logger
}

func NewFinalizer(notes NoteRepository, plans PlanCompleter, appts AppointmentCompleter, logger zerolog.Logger) *Finalizer {
	return &Finalizer{notes: notes, plans: plans, appointments: appts, logger: logger}
}

// SaveNote stores n. The note's own practitioner wins; practitionerID is used
// when the note has none.
func (f *Finalizer) SaveNote(ctx context.Context, n *Note, practitionerID uuid.UUID) error {
	if n.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if n.PractitionerID == uuid.Nil {
		n.PractitionerID = practitionerID
	}
	if n.PractitionerID == uuid.Nil {
		return fmt.Errorf("practitioner_id is required")
	}
	if n.VisitAt.IsZero() {
		n.VisitAt = time.Now().UTC()
	}
	if n.Status == "" {
		n.Status = StatusCompleted
	}
	payload, err := json.Marshal(n.Details)
	if err != nil {
		return fmt.Errorf("encode note details: %w", err)
	}
	if err := f.notes.Create(ctx, n, payload); err != nil {
		return fmt.Errorf("save encounter note: %w", err)
	}
	return nil
}

// CloseEncounter completes the plan and the appointment. Both writes are
// guarded, so closing twice changes nothing the second time. Either id may
// be uuid.Nil to skip that record.
func (f *Finalizer) CloseEncounter(ctx context.Context, planID, appointmentID uuid.UUID) (CloseResult, error) {
	var (
		res  CloseResult
		errs []error
	)
	if planID != uuid.Nil {
		updated, err := f.plans.MarkCompleted(ctx, planID)
		if err != nil {
			errs = append(errs, fmt.Errorf("close treatment plan %s: %w", planID, err))
		}
		res.PlanUpdated = updated
	}
	if appointmentID != uuid.Nil {
		updated, err := f.appointments.Complete(ctx, appointmentID)
		if err != nil {
			errs = append(errs, fmt.Errorf("close appointment %s: %w", appointmentID, err))
		}
		res.AppointmentUpdated = updated
	}
	f.logger.Debug().
		Bool("plan_updated", res.PlanUpdated).
		Bool("appointment_updated", res.AppointmentUpdated).
		Msg("encounter closed")
	return res, errors.Join(errs...)
}

func (f *Finalizer) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Note, int, error) {
	return f.notes.ListByPatient(ctx, patientID, limit, offset)
}

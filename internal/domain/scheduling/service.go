package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrTerminalStatus is returned when a Completed or Cancelled appointment
// would have to move to another status.
var ErrTerminalStatus = errors.New("appointment is in a terminal status")

type Service struct {
	appointments      AppointmentRepository
	completedFallback int
	logger            zerolog.Logger
}

// NewService builds the scheduling service. completedFallback is the status
// id used when the Completed status cannot be resolved by name.
func NewService(repo AppointmentRepository, completedFallback int, logger zerolog.Logger) *Service {
	return &Service{appointments: repo, completedFallback: completedFallback, logger: logger}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

// ListOpenForPractitioner returns the practitioner's appointments starting on
// the calendar day of day that are neither Completed nor Cancelled.
func (s *Service) ListOpenForPractitioner(ctx context.Context, practitionerID uuid.UUID, day time.Time) ([]*Appointment, error) {
	if practitionerID == uuid.Nil {
		return nil, fmt.Errorf("practitioner_id is required")
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	all, err := s.appointments.ListForPractitioner(ctx, practitionerID, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	open := make([]*Appointment, 0, len(all))
	for _, a := range all {
		if a.Open() {
			open = append(open, a)
		}
	}
	return open, nil
}

func (s *Service) StatusIDByName(ctx context.Context, name string) (int, error) {
	return s.appointments.StatusIDByName(ctx, name)
}

// CompletedStatusID resolves the Completed status id, degrading to the
// configured fallback when the lookup misses.
func (s *Service) CompletedStatusID(ctx context.Context) int {
	id, err := s.appointments.StatusIDByName(ctx, StatusCompleted)
	if err != nil {
		s.logger.Warn().Err(err).Int("fallback_id", s.completedFallback).
			Msg("completed status not found by name, using fallback id")
		return s.completedFallback
	}
	return id
}

// SetStatus writes statusID with a guarded update and reports whether the
// row changed.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, statusID int) (bool, error) {
	return s.appointments.SetStatus(ctx, id, statusID)
}

// Complete moves the appointment to Completed. A second call is a no-op and
// a Cancelled appointment is left untouched.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (bool, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("load appointment: %w", err)
	}
	if canonical(a.Status) == StatusCompleted {
		return false, nil
	}
	if !CanTransition(a.Status, StatusCompleted) {
		return false, fmt.Errorf("%w: %s", ErrTerminalStatus, a.Status)
	}
	updated, err := s.appointments.SetStatus(ctx, id, s.CompletedStatusID(ctx))
	if err != nil {
		return false, fmt.Errorf("update appointment status: %w", err)
	}
	return updated, nil
}

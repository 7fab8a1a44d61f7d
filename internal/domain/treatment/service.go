package treatment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidLine   = errors.New("invalid service line")
	ErrPlanImmutable = errors.New("treatment plan is closed and cannot change")
	ErrTerminalPlan  = errors.New("treatment plan is in a terminal status")
)

type Service struct {
	plans PlanRepository
}

func NewService(plans PlanRepository) *Service {
	return &Service{plans: plans}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Plan, error) {
	return s.plans.GetByID(ctx, id)
}

// ActiveForPatient returns the patient's Pending or Ongoing plan, or
// ErrNotFound.
func (s *Service) ActiveForPatient(ctx context.Context, patientID uuid.UUID) (*Plan, error) {
	return s.plans.ActiveForPatient(ctx, patientID)
}

func (s *Service) validate(p *Plan) error {
	if p.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	if !validPlanStatuses[p.Status] {
		return fmt.Errorf("invalid plan status: %s", p.Status)
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = "Treatment Plan"
	}
	for i := range p.Lines {
		if err := p.Lines[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Save inserts the plan, or updates name, description and status of a
// persisted one, and inserts every line that has no storage row yet. On a
// persisted plan the lines go in before the status is written, so a failed
// line never leaves the stored plan closed.
func (s *Service) Save(ctx context.Context, p *Plan) (uuid.UUID, error) {
	if err := s.validate(p); err != nil {
		return uuid.Nil, err
	}
	pending := p.PendingLines()

	if !p.Persisted() {
		if err := s.plans.Create(ctx, p); err != nil {
			return uuid.Nil, fmt.Errorf("create treatment plan: %w", err)
		}
		if err := s.addLines(ctx, p, pending); err != nil {
			return uuid.Nil, err
		}
		return p.ID, nil
	}

	stored, err := s.plans.GetByID(ctx, p.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load treatment plan: %w", err)
	}
	if IsTerminal(stored.Status) {
		if stored.Status != p.Status || stored.Name != p.Name || len(pending) > 0 {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrPlanImmutable, stored.Status)
		}
		return p.ID, nil
	}
	if !CanTransition(stored.Status, p.Status) {
		return uuid.Nil, fmt.Errorf("invalid plan transition %s -> %s", stored.Status, p.Status)
	}
	if err := s.addLines(ctx, p, pending); err != nil {
		return uuid.Nil, err
	}
	if err := s.plans.Update(ctx, p); err != nil {
		return uuid.Nil, fmt.Errorf("update treatment plan: %w", err)
	}
	return p.ID, nil
}

func (s *Service) addLines(ctx context.Context, p *Plan, pending []*ServiceLine) error {
	for i, l := range pending {
		l.PlanID = p.ID
		if l.Status == "" {
			l.Status = StatusPending
		}
		if l.Priority == 0 {
			l.Priority = len(p.Lines) - len(pending) + i + 1
		}
		if err := s.plans.AddLine(ctx, l); err != nil {
			return fmt.Errorf("add service line %s: %w", l.ServiceName, err)
		}
	}
	return nil
}

// MarkCompleted moves the plan to Completed. It reports whether a write
// happened; an already completed plan is left alone.
func (s *Service) MarkCompleted(ctx context.Context, planID uuid.UUID) (bool, error) {
	p, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return false, fmt.Errorf("load treatment plan: %w", err)
	}
	switch p.Status {
	case StatusCompleted:
		return false, nil
	case StatusCancelled:
		return false, fmt.Errorf("%w: %s", ErrTerminalPlan, p.Status)
	}
	updated, err := s.plans.TransitionStatus(ctx, planID, StatusCompleted,
		[]string{StatusPending, StatusOngoing})
	if err != nil {
		return false, fmt.Errorf("complete treatment plan: %w", err)
	}
	return updated, nil
}

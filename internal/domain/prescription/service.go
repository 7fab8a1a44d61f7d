package prescription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidPrescription = errors.New("invalid prescription")

type Service struct {
	prescriptions PrescriptionRepository
}

func NewService(repo PrescriptionRepository) *Service {
	return &Service{prescriptions: repo}
}

func Validate(p *Prescription) error {
	if p.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrInvalidPrescription)
	}
	if p.PrescriberID == uuid.Nil {
		return fmt.Errorf("%w: prescriber_id is required", ErrInvalidPrescription)
	}
	if strings.TrimSpace(p.MedicineName) == "" {
		return fmt.Errorf("%w: medicine_name is required", ErrInvalidPrescription)
	}
	return nil
}

func (s *Service) Save(ctx context.Context, p *Prescription) error {
	p.MedicineName = strings.TrimSpace(p.MedicineName)
	if err := Validate(p); err != nil {
		return err
	}
	if strings.TrimSpace(p.Quantity) == "" {
		p.Quantity = "1"
	}
	if err := s.prescriptions.Create(ctx, p); err != nil {
		return fmt.Errorf("save prescription %s: %w", p.MedicineName, err)
	}
	return nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.ListByPatient(ctx, patientID, limit, offset)
}

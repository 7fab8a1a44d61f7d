package charting

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrInvalidTooth = errors.New("tooth number out of range")

type Service struct {
	records ToothRecordRepository
}

func NewService(records ToothRecordRepository) *Service {
	return &Service{records: records}
}

// Save stores every record that differs from the default condition and
// returns how many were stored. A default record clears whatever was stored
// for its tooth.
func (s *Service) Save(ctx context.Context, records []ToothRecord) (int, error) {
	saved := 0
	for i := range records {
		rec := &records[i]
		if rec.PatientID == uuid.Nil {
			return saved, fmt.Errorf("patient_id is required")
		}
		if !ValidTooth(rec.ToothNumber) {
			return saved, fmt.Errorf("%w: %d", ErrInvalidTooth, rec.ToothNumber)
		}
		if rec.IsDefault() {
			if err := s.records.Delete(ctx, rec.PatientID, rec.ToothNumber); err != nil {
				return saved, fmt.Errorf("clear tooth %d: %w", rec.ToothNumber, err)
			}
			continue
		}
		if rec.Source == "" {
			rec.Source = SourceManual
		}
		if err := s.records.Upsert(ctx, rec); err != nil {
			return saved, fmt.Errorf("save tooth %d: %w", rec.ToothNumber, err)
		}
		saved++
	}
	return saved, nil
}

func (s *Service) Chart(ctx context.Context, patientID uuid.UUID) ([]*ToothRecord, error) {
	return s.records.ListByPatient(ctx, patientID)
}

package charting

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultCondition is the condition every tooth has until charted otherwise.
const DefaultCondition = "Healthy"

const (
	SourceAuto   = "auto"
	SourceManual = "manual"
)

const (
	MinTooth = 1
	MaxTooth = 32
)

type ToothRecord struct {
	ID            uuid.UUID `db:"id" json:"id"`
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	ToothNumber   int       `db:"tooth_number" json:"tooth_number"`
	Condition     string    `db:"condition" json:"condition"`
	ProcedureType *string   `db:"procedure_type" json:"procedure_type,omitempty"`
	Notes         *string   `db:"notes" json:"notes,omitempty"`
	Source        string    `db:"source" json:"source"`
}

func ValidTooth(n int) bool { return n >= MinTooth && n <= MaxTooth }

// IsDefault reports whether the record carries nothing beyond the default
// condition and therefore is not stored.
func (r *ToothRecord) IsDefault() bool {
	c := strings.TrimSpace(r.Condition)
	return c == "" || strings.EqualFold(c, DefaultCondition)
}

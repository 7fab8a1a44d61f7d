package prescription

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Prescription struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	AppointmentID *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	MedicineID    *uuid.UUID `db:"medicine_id" json:"medicine_id,omitempty"`
	MedicineName  string     `db:"medicine_name" json:"medicine_name"`
	Dosage        string     `db:"dosage" json:"dosage"`
	Frequency     string     `db:"frequency" json:"frequency"`
	Duration      string     `db:"duration" json:"duration"`
	Quantity      string     `db:"quantity" json:"quantity"`
	PrescriberID  uuid.UUID  `db:"prescriber_id" json:"prescriber_id"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Units is the dispensed quantity as a count.
func (p *Prescription) Units() int { return ParseQuantity(p.Quantity) }

// ParseQuantity reads a free-text quantity as a non-negative count. Anything
// that is not one yields 1.
func ParseQuantity(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 1
	}
	return n
}

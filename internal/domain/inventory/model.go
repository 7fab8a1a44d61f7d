package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicflow/clinic/internal/domain/catalog"
)

var ErrInvalidUsage = errors.New("invalid material usage")

// MaterialUsage is one item consumed during an encounter.
type MaterialUsage struct {
	ItemID   *uuid.UUID       `json:"item_id,omitempty"`
	ItemName string           `json:"item_name"`
	Category catalog.Category `json:"category"`
	Quantity int              `json:"quantity"`
	UnitCost decimal.Decimal  `json:"unit_cost"`
	Supplier *string          `json:"supplier,omitempty"`
	Notes    *string          `json:"notes,omitempty"`
}

func (u *MaterialUsage) Validate() error {
	if strings.TrimSpace(u.ItemName) == "" {
		return fmt.Errorf("%w: item_name is required", ErrInvalidUsage)
	}
	if !u.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidUsage, u.Category)
	}
	if u.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidUsage, u.Quantity)
	}
	if u.UnitCost.IsNegative() {
		return fmt.Errorf("%w: unit cost must not be negative", ErrInvalidUsage)
	}
	return nil
}

// StockOutEvent is the append-only audit record of one inventory decrement.
type StockOutEvent struct {
	ID            uuid.UUID        `db:"id" json:"id"`
	ReferenceCode string           `db:"reference_code" json:"reference_code"`
	ItemName      string           `db:"item_name" json:"item_name"`
	Category      catalog.Category `db:"category" json:"category"`
	Quantity      int              `db:"quantity" json:"quantity"`
	Actor         string           `db:"actor" json:"actor"`
	Notes         string           `db:"notes" json:"notes"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}

// UsageContext describes who used material for what.
type UsageContext struct {
	Actor        string
	PatientLabel string
	Procedure    string
}

// DecrementQuantity is the stock left after using used units, never below
// zero.
func DecrementQuantity(current, used int) int {
	if used <= 0 {
		return current
	}
	if used >= current {
		return 0
	}
	return current - used
}

// NewReferenceCode returns a stock-out reference such as SO-20261015-9F86D081.
func NewReferenceCode(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "SO-" + at.Format("20060102") + "-" + suffix
}

func usageNote(u MaterialUsage, uc UsageContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Used %d x %s", u.Quantity, u.ItemName)
	if uc.Procedure != "" {
		fmt.Fprintf(&b, " for %s", uc.Procedure)
	}
	if uc.PatientLabel != "" {
		fmt.Fprintf(&b, " (patient %s)", uc.PatientLabel)
	}
	if u.Notes != nil && strings.TrimSpace(*u.Notes) != "" {
		fmt.Fprintf(&b, ": %s", strings.TrimSpace(*u.Notes))
	}
	return b.String()
}

package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicflow/clinic/internal/domain/inventory"
	"github.com/clinicflow/clinic/internal/domain/prescription"
	"github.com/clinicflow/clinic/internal/domain/treatment"
)

const PaymentPending = "Pending"

// LineCategory names the group, and storage table, an invoice line belongs to.
type LineCategory string

const (
	LineService    LineCategory = "service"
	LineMedicine   LineCategory = "medicine"
	LineEquipment  LineCategory = "equipment"
	LineConsumable LineCategory = "consumable"
)

var lineTables = map[LineCategory]string{
	LineService:    "invoice_service_items",
	LineMedicine:   "invoice_medicine_items",
	LineEquipment:  "invoice_equipment_items",
	LineConsumable: "invoice_consumable_items",
}

// LineCategories lists the groups in invoice order.
var LineCategories = []LineCategory{LineService, LineMedicine, LineEquipment, LineConsumable}

func (c LineCategory) Table() string { return lineTables[c] }

type Invoice struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	PatientID     uuid.UUID       `db:"patient_id" json:"patient_id"`
	AppointmentID *uuid.UUID      `db:"appointment_id" json:"appointment_id,omitempty"`
	PlanID        *uuid.UUID      `db:"plan_id" json:"plan_id,omitempty"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	PayableAmount decimal.Decimal `db:"payable_amount" json:"payable_amount"`
	PaymentStatus string          `db:"payment_status" json:"payment_status"`
	Items         []LineItem      `json:"items"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

type LineItem struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	InvoiceID   uuid.UUID       `db:"invoice_id" json:"invoice_id"`
	Category    LineCategory    `json:"category"`
	ReferenceID *uuid.UUID      `db:"reference_id" json:"reference_id,omitempty"`
	Description string          `db:"description" json:"description"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	Subtotal    decimal.Decimal `db:"subtotal" json:"subtotal"`
}

func newLineItem(category LineCategory, ref *uuid.UUID, desc string, qty int, unit decimal.Decimal) LineItem {
	return LineItem{
		Category:    category,
		ReferenceID: ref,
		Description: desc,
		Quantity:    qty,
		UnitPrice:   unit,
		Subtotal:    unit.Mul(decimal.NewFromInt(int64(qty))),
	}
}

// Input gathers every cost source of one encounter.
type Input struct {
	PatientID     uuid.UUID
	AppointmentID *uuid.UUID
	PlanID        *uuid.UUID
	Lines         []treatment.ServiceLine
	Prescriptions []prescription.Prescription
	Materials     []inventory.MaterialUsage
}

// Sum adds the subtotals of items.
func Sum(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal)
	}
	return total
}

package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinicflow/clinic/internal/domain/catalog"
	"github.com/clinicflow/clinic/internal/domain/inventory"
	"github.com/clinicflow/clinic/internal/domain/prescription"
)

// PriceLookup resolves catalog prices.
type PriceLookup interface {
	catalog.ItemFinder
	Service(ctx context.Context, id uuid.UUID) (*catalog.Service, error)
}

// Aggregator turns the cost sources of an encounter into an invoice.
type Aggregator struct {
	invoices InvoiceRepository
	prices   PriceLookup
	logger   zerolog.Logger
}

func NewAggregator(invoices InvoiceRepository, prices PriceLookup, logger zerolog.Logger) *Aggregator {
	return &Aggregator{invoices: invoices, prices: prices, logger: logger}
}

var materialLines = map[catalog.Category]LineCategory{
	catalog.CategoryMedicine:   LineMedicine,
	catalog.CategoryEquipment:  LineEquipment,
	catalog.CategoryConsumable: LineConsumable,
}

// Quote prices every cost source of in without writing anything. Items come
// back grouped as services, medicines, equipment, consumables.
func (a *Aggregator) Quote(ctx context.Context, in Input) ([]LineItem, decimal.Decimal, error) {
	groups := make(map[LineCategory][]LineItem, len(LineCategories))

	for _, l := range in.Lines {
		price, err := a.servicePrice(ctx, l.ServiceID, l.EstimatedCost)
		if err != nil {
			return nil, decimal.Zero, err
		}
		ref := l.ServiceID
		groups[LineService] = append(groups[LineService], newLineItem(LineService, &ref, l.ServiceName, 1, price))
	}

	for _, u := range in.Materials {
		lc, ok := materialLines[u.Category]
		if !ok || u.Quantity <= 0 {
			continue
		}
		unit, ref, err := a.itemPrice(ctx, u.Category, u.ItemID, u.ItemName)
		if err != nil {
			return nil, decimal.Zero, err
		}
		groups[lc] = append(groups[lc], newLineItem(lc, ref, u.ItemName, u.Quantity, unit))
	}

	for i := range in.Prescriptions {
		rx := &in.Prescriptions[i]
		if representedInMaterials(rx, in.Materials) {
			continue
		}
		qty := rx.Units()
		if qty <= 0 {
			continue
		}
		unit, ref, err := a.itemPrice(ctx, catalog.CategoryMedicine, rx.MedicineID, rx.MedicineName)
		if err != nil {
			return nil, decimal.Zero, err
		}
		groups[LineMedicine] = append(groups[LineMedicine], newLineItem(LineMedicine, ref, rx.MedicineName, qty, unit))
	}

	var items []LineItem
	for _, c := range LineCategories {
		items = append(items, groups[c]...)
	}
	return items, Sum(items), nil
}

// servicePrice is the line's estimate when it has one, else the catalog fee.
func (a *Aggregator) servicePrice(ctx context.Context, serviceID uuid.UUID, estimate decimal.NullDecimal) (decimal.Decimal, error) {
	if estimate.Valid {
		return estimate.Decimal, nil
	}
	svc, err := a.prices.Service(ctx, serviceID)
	if errors.Is(err, catalog.ErrNotFound) {
		a.logger.Warn().Str("service_id", serviceID.String()).Msg("service not in catalog, billed at 0")
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("look up service %s: %w", serviceID, err)
	}
	return svc.Fee, nil
}

// itemPrice is the catalog unit cost of an item, 0 when it is not stocked.
func (a *Aggregator) itemPrice(ctx context.Context, category catalog.Category, id *uuid.UUID, name string) (decimal.Decimal, *uuid.UUID, error) {
	it, err := catalog.ResolveItem(ctx, a.prices, category, id, name)
	if errors.Is(err, catalog.ErrNotFound) {
		a.logger.Warn().Str("item", name).Str("category", string(category)).Msg("item not in catalog, billed at 0")
		return decimal.Zero, id, nil
	}
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("look up %s %s: %w", strings.ToLower(string(category)), name, err)
	}
	ref := it.ID
	return it.UnitCost, &ref, nil
}

func representedInMaterials(rx *prescription.Prescription, materials []inventory.MaterialUsage) bool {
	for _, u := range materials {
		if u.Category != catalog.CategoryMedicine {
			continue
		}
		if rx.MedicineID != nil && u.ItemID != nil && *rx.MedicineID == *u.ItemID {
			return true
		}
		if strings.EqualFold(strings.TrimSpace(u.ItemName), strings.TrimSpace(rx.MedicineName)) {
			return true
		}
	}
	return false
}

// BuildInvoice prices the encounter and stores the invoice with one row per
// line item. An encounter that costs nothing yields no invoice and a nil
// result.
func (a *Aggregator) BuildInvoice(ctx context.Context, in Input) (*Invoice, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	items, total, err := a.Quote(ctx, in)
	if err != nil {
		return nil, err
	}
	if !total.IsPositive() {
		return nil, nil
	}

	inv := &Invoice{
		PatientID:     in.PatientID,
		AppointmentID: in.AppointmentID,
		PlanID:        in.PlanID,
		TotalAmount:   total,
		PayableAmount: total,
		PaymentStatus: PaymentPending,
	}
	if err := a.invoices.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	for i := range items {
		items[i].InvoiceID = inv.ID
		if err := a.invoices.AddItem(ctx, &items[i]); err != nil {
			return nil, fmt.Errorf("add %s line %s: %w", items[i].Category, items[i].Description, err)
		}
	}
	inv.Items = items
	return inv, nil
}

func (a *Aggregator) Get(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := a.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := a.invoices.Items(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load invoice items: %w", err)
	}
	inv.Items = items
	return inv, nil
}

func (a *Aggregator) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error) {
	return a.invoices.ListByPatient(ctx, patientID, limit, offset)
}

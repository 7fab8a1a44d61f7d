package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicflow/clinic/internal/domain/catalog"
	"github.com/clinicflow/clinic/internal/domain/prescription"
)

// Ledger records material consumption: every usage appends a stock-out event
// and lowers the stocked quantity.
type Ledger struct {
	repo   Repository
	items  catalog.ItemFinder
	logger zerolog.Logger
	now    func() time.Time
}

func NewLedger(repo Repository, items catalog.ItemFinder, logger zerolog.Logger) *Ledger {
	return &Ledger{repo: repo, items: items, logger: logger, now: time.Now}
}

// RecordUsage writes the stock-out event for u and then decrements the
// matching item. A usage that matches no stocked item still gets its event;
// the miss is only logged.
func (l *Ledger) RecordUsage(ctx context.Context, u MaterialUsage, uc UsageContext) (*StockOutEvent, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	e := &StockOutEvent{
		ReferenceCode: NewReferenceCode(l.now()),
		ItemName:      strings.TrimSpace(u.ItemName),
		Category:      u.Category,
		Quantity:      u.Quantity,
		Actor:         uc.Actor,
		Notes:         usageNote(u, uc),
	}
	if err := l.repo.AppendEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("append stock-out event for %s: %w", e.ItemName, err)
	}

	remaining, err := l.repo.Decrement(ctx, u.Category, u.ItemID, e.ItemName, u.Quantity)
	if errors.Is(err, ErrItemNotFound) && u.ItemID != nil {
		remaining, err = l.repo.Decrement(ctx, u.Category, nil, e.ItemName, u.Quantity)
	}
	switch {
	case errors.Is(err, ErrItemNotFound):
		l.logger.Warn().
			Str("item", e.ItemName).
			Str("category", string(u.Category)).
			Str("reference", e.ReferenceCode).
			Msg("stock-out recorded for unknown inventory item, quantity not decremented")
	case err != nil:
		return nil, fmt.Errorf("decrement %s: %w", e.ItemName, err)
	default:
		l.logger.Debug().
			Str("item", e.ItemName).
			Int("used", u.Quantity).
			Int("remaining", remaining).
			Msg("inventory decremented")
	}
	return e, nil
}

// MergeMedicineUsage folds a prescription into the encounter's material list.
// When the prescribed medicine is a stocked item, the same-name Medicine
// usage grows by the prescribed quantity, or a new usage is appended. It
// reports whether the list changed.
func (l *Ledger) MergeMedicineUsage(ctx context.Context, usages []MaterialUsage, rx *prescription.Prescription) ([]MaterialUsage, bool, error) {
	item, err := catalog.ResolveItem(ctx, l.items, catalog.CategoryMedicine, rx.MedicineID, rx.MedicineName)
	if errors.Is(err, catalog.ErrNotFound) {
		return usages, false, nil
	}
	if err != nil {
		return usages, false, fmt.Errorf("resolve medicine %s: %w", rx.MedicineName, err)
	}
	qty := rx.Units()
	if qty <= 0 {
		return usages, false, nil
	}
	if rx.MedicineID == nil {
		id := item.ID
		rx.MedicineID = &id
	}

	for i := range usages {
		if usages[i].Category == catalog.CategoryMedicine && strings.EqualFold(usages[i].ItemName, item.Name) {
			usages[i].Quantity += qty
			return usages, true, nil
		}
	}
	id := item.ID
	return append(usages, MaterialUsage{
		ItemID:   &id,
		ItemName: item.Name,
		Category: catalog.CategoryMedicine,
		Quantity: qty,
		UnitCost: item.UnitCost,
		Supplier: item.Supplier,
	}), true, nil
}

// Unmerge takes a previously merged prescription back out of the material
// list, dropping the usage once nothing of it remains.
func Unmerge(usages []MaterialUsage, rx *prescription.Prescription) []MaterialUsage {
	qty := rx.Units()
	for i := range usages {
		u := &usages[i]
		if u.Category != catalog.CategoryMedicine {
			continue
		}
		sameItem := rx.MedicineID != nil && u.ItemID != nil && *rx.MedicineID == *u.ItemID
		if !sameItem && !strings.EqualFold(u.ItemName, strings.TrimSpace(rx.MedicineName)) {
			continue
		}
		u.Quantity -= qty
		if u.Quantity <= 0 {
			return append(usages[:i], usages[i+1:]...)
		}
		return usages
	}
	return usages
}

func (l *Ledger) ListEvents(ctx context.Context, limit, offset int) ([]*StockOutEvent, int, error) {
	return l.repo.ListEvents(ctx, limit, offset)
}

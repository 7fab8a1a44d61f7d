package encounter

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinicflow/clinic/internal/domain/billing"
	"github.com/clinicflow/clinic/internal/domain/catalog"
	"github.com/clinicflow/clinic/internal/domain/charting"
	"github.com/clinicflow/clinic/internal/domain/clinicalnote"
	"github.com/clinicflow/clinic/internal/domain/inventory"
	"github.com/clinicflow/clinic/internal/domain/prescription"
	"github.com/clinicflow/clinic/internal/domain/scheduling"
	"github.com/clinicflow/clinic/internal/domain/treatment"
)

// world is an in-memory clinic database. Its transactor snapshots the whole
// world on begin and restores it on rollback, so commit tests see the same
// all-or-nothing behaviour as the pgx transaction runner.
type world struct {
	appts      map[uuid.UUID]scheduling.Appointment
	statuses   map[string]int
	services   map[uuid.UUID]catalog.Service
	items      map[uuid.UUID]catalog.Item
	conditions []*catalog.ToothCondition
	plans      map[uuid.UUID]treatment.Plan
	lines      map[uuid.UUID][]treatment.ServiceLine
	teeth      map[uuid.UUID]map[int]charting.ToothRecord
	rxs        []prescription.Prescription
	events     []inventory.StockOutEvent
	notes      []clinicalnote.Note
	payloads   [][]byte
	invoices   map[uuid.UUID]billing.Invoice
	invItems   []billing.LineItem

	fail map[string]error
}

func newWorld() *world {
	return &world{
		appts: make(map[uuid.UUID]scheduling.Appointment),
		statuses: map[string]int{
			scheduling.StatusScheduled: 1, scheduling.StatusConfirmed: 2, scheduling.StatusCompleted: 3,
			scheduling.StatusCancelled: 4, scheduling.StatusRescheduled: 5,
		},
		services: make(map[uuid.UUID]catalog.Service),
		items:    make(map[uuid.UUID]catalog.Item),
		conditions: []*catalog.ToothCondition{
			{ID: 1, Name: "Healthy"}, {ID: 2, Name: "For Filling"}, {ID: 3, Name: "Crown"},
			{ID: 4, Name: "Root Canal"}, {ID: 5, Name: "Missing"}, {ID: 6, Name: "Decayed"},
		},
		plans:    make(map[uuid.UUID]treatment.Plan),
		lines:    make(map[uuid.UUID][]treatment.ServiceLine),
		teeth:    make(map[uuid.UUID]map[int]charting.ToothRecord),
		invoices: make(map[uuid.UUID]billing.Invoice),
		fail:     make(map[string]error),
	}
}

func (w *world) failure(op string) error { return w.fail[op] }

func (w *world) snapshot() *world {
	s := *w
	s.appts = make(map[uuid.UUID]scheduling.Appointment, len(w.appts))
	for k, v := range w.appts {
		s.appts[k] = v
	}
	s.items = make(map[uuid.UUID]catalog.Item, len(w.items))
	for k, v := range w.items {
		s.items[k] = v
	}
	s.plans = make(map[uuid.UUID]treatment.Plan, len(w.plans))
	for k, v := range w.plans {
		s.plans[k] = v
	}
	s.lines = make(map[uuid.UUID][]treatment.ServiceLine, len(w.lines))
	for k, v := range w.lines {
		s.lines[k] = append([]treatment.ServiceLine(nil), v...)
	}
	s.teeth = make(map[uuid.UUID]map[int]charting.ToothRecord, len(w.teeth))
	for k, v := range w.teeth {
		m := make(map[int]charting.ToothRecord, len(v))
		for n, r := range v {
			m[n] = r
		}
		s.teeth[k] = m
	}
	s.invoices = make(map[uuid.UUID]billing.Invoice, len(w.invoices))
	for k, v := range w.invoices {
		s.invoices[k] = v
	}
	s.rxs = append([]prescription.Prescription(nil), w.rxs...)
	s.events = append([]inventory.StockOutEvent(nil), w.events...)
	s.notes = append([]clinicalnote.Note(nil), w.notes...)
	s.payloads = append([][]byte(nil), w.payloads...)
	s.invItems = append([]billing.LineItem(nil), w.invItems...)
	return &s
}

func (w *world) restore(s *world) {
	fail := w.fail
	*w = *s
	w.fail = fail
}

type worldTx struct {
	w      *world
	begins int
	rolled int
}

func (t *worldTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.begins++
	snap := t.w.snapshot()
	if err := fn(ctx); err != nil {
		t.w.restore(snap)
		t.rolled++
		return err
	}
	return nil
}

// scheduling

type apptRepo struct{ w *world }

func (r apptRepo) GetByID(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	a, ok := r.w.appts[id]
	if !ok {
		return nil, scheduling.ErrNotFound
	}
	return &a, nil
}

func (r apptRepo) ListForPractitioner(_ context.Context, pid uuid.UUID, from, to time.Time) ([]*scheduling.Appointment, error) {
	var out []*scheduling.Appointment
	for _, a := range r.w.appts {
		if a.PractitionerID == pid && !a.StartsAt.Before(from) && a.StartsAt.Before(to) {
			a := a
			out = append(out, &a)
		}
	}
	return out, nil
}

func (r apptRepo) StatusIDByName(_ context.Context, name string) (int, error) {
	for n, id := range r.w.statuses {
		if strings.EqualFold(n, name) {
			return id, nil
		}
	}
	return 0, scheduling.ErrNotFound
}

func (r apptRepo) SetStatus(_ context.Context, id uuid.UUID, statusID int) (bool, error) {
	if err := r.w.failure("appointment.status"); err != nil {
		return false, err
	}
	a, ok := r.w.appts[id]
	if !ok || a.StatusID == statusID {
		return false, nil
	}
	a.StatusID = statusID
	for n, sid := range r.w.statuses {
		if sid == statusID {
			a.Status = n
		}
	}
	r.w.appts[id] = a
	return true, nil
}

// catalog

type catalogRepo struct{ w *world }

func (r catalogRepo) Service(_ context.Context, id uuid.UUID) (*catalog.Service, error) {
	s, ok := r.w.services[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &s, nil
}

func (r catalogRepo) ItemByID(_ context.Context, category catalog.Category, id uuid.UUID) (*catalog.Item, error) {
	it, ok := r.w.items[id]
	if !ok || it.Category != category {
		return nil, catalog.ErrNotFound
	}
	return &it, nil
}

func (r catalogRepo) ItemByName(_ context.Context, category catalog.Category, name string) (*catalog.Item, error) {
	for _, it := range r.w.items {
		if it.Category == category && strings.EqualFold(it.Name, name) {
			it := it
			return &it, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (r catalogRepo) ToothConditions(context.Context) ([]*catalog.ToothCondition, error) {
	return r.w.conditions, nil
}

// treatment

type planRepo struct{ w *world }

func (r planRepo) Create(_ context.Context, p *treatment.Plan) error {
	if err := r.w.failure("plan.create"); err != nil {
		return err
	}
	p.ID = uuid.New()
	stored := *p
	stored.Lines = nil
	r.w.plans[p.ID] = stored
	return nil
}

func (r planRepo) GetByID(_ context.Context, id uuid.UUID) (*treatment.Plan, error) {
	p, ok := r.w.plans[id]
	if !ok {
		return nil, treatment.ErrNotFound
	}
	p.Lines = append([]treatment.ServiceLine(nil), r.w.lines[id]...)
	return &p, nil
}

func (r planRepo) Update(_ context.Context, p *treatment.Plan) error {
	stored := r.w.plans[p.ID]
	stored.Name, stored.Description, stored.Status = p.Name, p.Description, p.Status
	r.w.plans[p.ID] = stored
	return nil
}

func (r planRepo) TransitionStatus(_ context.Context, id uuid.UUID, status string, from []string) (bool, error) {
	p, ok := r.w.plans[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if p.Status == f {
			p.Status = status
			r.w.plans[id] = p
			return true, nil
		}
	}
	return false, nil
}

func (r planRepo) ActiveForPatient(ctx context.Context, patientID uuid.UUID) (*treatment.Plan, error) {
	for id, p := range r.w.plans {
		if p.PatientID == patientID && !treatment.IsTerminal(p.Status) {
			return r.GetByID(ctx, id)
		}
	}
	return nil, treatment.ErrNotFound
}

func (r planRepo) AddLine(_ context.Context, l *treatment.ServiceLine) error {
	if err := r.w.failure("plan.line"); err != nil {
		return err
	}
	l.ID = uuid.New()
	r.w.lines[l.PlanID] = append(r.w.lines[l.PlanID], *l)
	return nil
}

func (r planRepo) Lines(_ context.Context, planID uuid.UUID) ([]treatment.ServiceLine, error) {
	return r.w.lines[planID], nil
}

// charting

type toothRepo struct{ w *world }

func (r toothRepo) Upsert(_ context.Context, rec *charting.ToothRecord) error {
	if r.w.teeth[rec.PatientID] == nil {
		r.w.teeth[rec.PatientID] = make(map[int]charting.ToothRecord)
	}
	rec.ID = uuid.New()
	r.w.teeth[rec.PatientID][rec.ToothNumber] = *rec
	return nil
}

func (r toothRepo) Delete(_ context.Context, patientID uuid.UUID, toothNumber int) error {
	delete(r.w.teeth[patientID], toothNumber)
	return nil
}

func (r toothRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*charting.ToothRecord, error) {
	var out []*charting.ToothRecord
	for _, rec := range r.w.teeth[patientID] {
		rec := rec
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToothNumber < out[j].ToothNumber })
	return out, nil
}

// prescriptions

type rxRepo struct{ w *world }

func (r rxRepo) Create(_ context.Context, p *prescription.Prescription) error {
	p.ID = uuid.New()
	r.w.rxs = append(r.w.rxs, *p)
	return nil
}

func (r rxRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*prescription.Prescription, int, error) {
	var out []*prescription.Prescription
	for _, p := range r.w.rxs {
		if p.PatientID == patientID {
			p := p
			out = append(out, &p)
		}
	}
	return out, len(out), nil
}

// inventory

type stockRepo struct{ w *world }

func (r stockRepo) AppendEvent(_ context.Context, e *inventory.StockOutEvent) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	r.w.events = append(r.w.events, *e)
	return nil
}

func (r stockRepo) ListEvents(_ context.Context, limit, offset int) ([]*inventory.StockOutEvent, int, error) {
	var out []*inventory.StockOutEvent
	for _, e := range r.w.events {
		e := e
		out = append(out, &e)
	}
	return out, len(out), nil
}

func (r stockRepo) Decrement(_ context.Context, category catalog.Category, itemID *uuid.UUID, name string, qty int) (int, error) {
	for id, it := range r.w.items {
		if it.Category != category {
			continue
		}
		if (itemID != nil && id == *itemID) || (itemID == nil && strings.EqualFold(it.Name, name)) {
			it.Quantity = inventory.DecrementQuantity(it.Quantity, qty)
			r.w.items[id] = it
			return it.Quantity, nil
		}
	}
	return 0, inventory.ErrItemNotFound
}

// billing

type invoiceRepo struct{ w *world }

func (r invoiceRepo) Create(_ context.Context, inv *billing.Invoice) error {
	inv.ID = uuid.New()
	r.w.invoices[inv.ID] = *inv
	return nil
}

func (r invoiceRepo) AddItem(_ context.Context, it *billing.LineItem) error {
	if err := r.w.failure("invoice.item"); err != nil {
		return err
	}
	it.ID = uuid.New()
	r.w.invItems = append(r.w.invItems, *it)
	return nil
}

func (r invoiceRepo) GetByID(_ context.Context, id uuid.UUID) (*billing.Invoice, error) {
	inv, ok := r.w.invoices[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return &inv, nil
}

func (r invoiceRepo) Items(_ context.Context, id uuid.UUID) ([]billing.LineItem, error) {
	var out []billing.LineItem
	for _, it := range r.w.invItems {
		if it.InvoiceID == id {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r invoiceRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*billing.Invoice, int, error) {
	var out []*billing.Invoice
	for _, inv := range r.w.invoices {
		if inv.PatientID == patientID {
			inv := inv
			out = append(out, &inv)
		}
	}
	return out, len(out), nil
}

// notes

type noteRepo struct{ w *world }

func (r noteRepo) Create(_ context.Context, n *clinicalnote.Note, details []byte) error {
	if err := r.w.failure("note.create"); err != nil {
		return err
	}
	n.ID = uuid.New()
	r.w.notes = append(r.w.notes, *n)
	r.w.payloads = append(r.w.payloads, details)
	return nil
}

func (r noteRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*clinicalnote.Note, int, error) {
	return nil, 0, nil
}

// env wires the real domain services over one world.
type env struct {
	w            *world
	tx           *worldTx
	wf           *Workflow
	ledger       *inventory.Ledger
	now          time.Time
	practitioner uuid.UUID
	patient      uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	w := newWorld()
	tx := &worldTx{w: w}
	logger := zerolog.Nop()
	cat := catalogRepo{w}

	appts := scheduling.NewService(apptRepo{w}, 3, logger)
	plans := treatment.NewService(planRepo{w})
	ledger := inventory.NewLedger(stockRepo{w}, cat, logger)
	wf := NewWorkflow(Deps{
		Appointments:  appts,
		Catalog:       cat,
		Plans:         plans,
		Charts:        charting.NewService(toothRepo{w}),
		Prescriptions: prescription.NewService(rxRepo{w}),
		Ledger:        ledger,
		Billing:       billing.NewAggregator(invoiceRepo{w}, cat, logger),
		Finalizer:     clinicalnote.NewFinalizer(noteRepo{w}, plans, appts, logger),
		Tx:            tx,
		Logger:        logger,
	})
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	wf.now = func() time.Time { return now }
	return &env{w: w, tx: tx, wf: wf, ledger: ledger, now: now, practitioner: uuid.New(), patient: uuid.New()}
}

func (e *env) addService(name, category, fee string) catalog.Service {
	s := catalog.Service{ID: uuid.New(), Name: name, Category: category, Fee: decimal.RequireFromString(fee)}
	e.w.services[s.ID] = s
	return s
}

func (e *env) addItem(category catalog.Category, name, cost string, qty int) catalog.Item {
	it := catalog.Item{ID: uuid.New(), Category: category, Name: name, UnitCost: decimal.RequireFromString(cost), Quantity: qty}
	e.w.items[it.ID] = it
	return it
}

func (e *env) addAppointment(serviceID uuid.UUID, status string) scheduling.Appointment {
	a := scheduling.Appointment{
		ID:             uuid.New(),
		PatientID:      e.patient,
		PractitionerID: e.practitioner,
		ServiceID:      serviceID,
		StartsAt:       e.now.Add(time.Hour),
		StatusID:       e.w.statuses[status],
		Status:         status,
	}
	e.w.appts[a.ID] = a
	return a
}

// draftAt selects the appointment and advances the draft to step, confirming
// completion on the way.
func (e *env) draftAt(t *testing.T, apptID uuid.UUID, step Step) *Draft {
	t.Helper()
	d := NewDraft(e.practitioner)
	if err := e.wf.SelectAppointment(context.Background(), d, apptID); err != nil {
		t.Fatalf("SelectAppointment: %v", err)
	}
	for d.Step < step {
		if err := e.wf.Advance(context.Background(), d, AdvanceInput{ConfirmCompleted: true}); err != nil {
			t.Fatalf("Advance from %s: %v", d.Step, err)
		}
	}
	return d
}

func intPtr(n int) *int { return &n }

package encounter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
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

var (
	ErrNoPatient              = errors.New("no patient is bound to the encounter")
	ErrCompletionNotConfirmed = errors.New("treatment completion must be confirmed before leaving charting")
	ErrWrongStep              = errors.New("not allowed at the current step")
	ErrLastStep               = errors.New("already at the last step")
	ErrAppointmentClosed      = errors.New("appointment is already completed or cancelled")
	ErrNotOwner               = errors.New("appointment belongs to another practitioner")
	ErrPlanCompleted          = errors.New("treatment plan is completed and cannot be edited")
	ErrUnknownCondition       = errors.New("unknown tooth condition")
	ErrPrescriptionIndex      = errors.New("no prescription at that position")
)

type Appointments interface {
	Get(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
	ListOpenForPractitioner(ctx context.Context, practitionerID uuid.UUID, day time.Time) ([]*scheduling.Appointment, error)
}

type Catalog interface {
	Service(ctx context.Context, id uuid.UUID) (*catalog.Service, error)
	ToothConditions(ctx context.Context) ([]*catalog.ToothCondition, error)
}

type Plans interface {
	Save(ctx context.Context, p *treatment.Plan) (uuid.UUID, error)
	ActiveForPatient(ctx context.Context, patientID uuid.UUID) (*treatment.Plan, error)
}

type Charts interface {
	Save(ctx context.Context, records []charting.ToothRecord) (int, error)
}

type Prescriptions interface {
	Save(ctx context.Context, p *prescription.Prescription) error
}

type Ledger interface {
	RecordUsage(ctx context.Context, u inventory.MaterialUsage, uc inventory.UsageContext) (*inventory.StockOutEvent, error)
	MergeMedicineUsage(ctx context.Context, usages []inventory.MaterialUsage, rx *prescription.Prescription) ([]inventory.MaterialUsage, bool, error)
}

type Billing interface {
	BuildInvoice(ctx context.Context, in billing.Input) (*billing.Invoice, error)
}

type Finalizer interface {
	SaveNote(ctx context.Context, n *clinicalnote.Note, practitionerID uuid.UUID) error
	CloseEncounter(ctx context.Context, planID, appointmentID uuid.UUID) (clinicalnote.CloseResult, error)
}

// Transactor runs fn in a transaction; nested calls run in a savepoint.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Deps struct {
	Appointments  Appointments
	Catalog       Catalog
	Plans         Plans
	Charts        Charts
	Prescriptions Prescriptions
	Ledger        Ledger
	Billing       Billing
	Finalizer     Finalizer
	Tx            Transactor
	Rules         *charting.Rules
	Logger        zerolog.Logger
}

// Workflow drives a draft through the six encounter steps and commits it.
type Workflow struct {
	appointments  Appointments
	catalog       Catalog
	plans         Plans
	charts        Charts
	prescriptions Prescriptions
	ledger        Ledger
	billing       Billing
	finalizer     Finalizer
	tx            Transactor
	rules         *charting.Rules
	logger        zerolog.Logger
	now           func() time.Time
}

func NewWorkflow(d Deps) *Workflow {
	rules := d.Rules
	if rules == nil {
		rules = charting.DefaultRules()
	}
	return &Workflow{
		appointments:  d.Appointments,
		catalog:       d.Catalog,
		plans:         d.Plans,
		charts:        d.Charts,
		prescriptions: d.Prescriptions,
		ledger:        d.Ledger,
		billing:       d.Billing,
		finalizer:     d.Finalizer,
		tx:            d.Tx,
		rules:         rules,
		logger:        d.Logger,
		now:           time.Now,
	}
}

func requireStep(d *Draft, s Step) error {
	if d.Step != s {
		return fmt.Errorf("%w: at %s, need %s", ErrWrongStep, d.Step, s)
	}
	return nil
}

// SelectAppointment binds the draft to an open appointment of the
// practitioner, loads the patient's active plan and makes sure the booked
// service is one of its lines.
func (w *Workflow) SelectAppointment(ctx context.Context, d *Draft, appointmentID uuid.UUID) error {
	if err := requireStep(d, StepAppointment); err != nil {
		return err
	}
	appt, err := w.appointments.Get(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if !appt.Open() {
		return fmt.Errorf("%w: %s", ErrAppointmentClosed, appt.Status)
	}
	if appt.PractitionerID != d.PractitionerID {
		return ErrNotOwner
	}
	svc, err := w.catalog.Service(ctx, appt.ServiceID)
	if err != nil {
		return fmt.Errorf("load service %s: %w", appt.ServiceID, err)
	}

	plan, err := w.plans.ActiveForPatient(ctx, appt.PatientID)
	switch {
	case errors.Is(err, treatment.ErrNotFound):
		plan = &treatment.Plan{
			PatientID:      appt.PatientID,
			PractitionerID: d.PractitionerID,
			Name:           fmt.Sprintf("%s (%s)", svc.Name, appt.StartsAt.Format("2006-01-02")),
			Status:         treatment.StatusPending,
		}
	case err != nil:
		return fmt.Errorf("load active plan: %w", err)
	}
	if !plan.HasService(svc.ID) {
		plan.Lines = append(plan.Lines, treatment.ServiceLine{
			ServiceID:       svc.ID,
			ServiceName:     svc.Name,
			ServiceCategory: svc.Category,
			EstimatedCost:   decimal.NewNullDecimal(svc.Fee),
			Priority:        len(plan.Lines) + 1,
			Status:          treatment.StatusPending,
		})
	}

	d.Reset()
	d.AppointmentID = appt.ID
	d.PatientID = appt.PatientID
	d.ServiceID = appt.ServiceID
	d.Plan = *plan
	apptID := appt.ID
	d.Note = clinicalnote.Note{
		PatientID:     appt.PatientID,
		AppointmentID: &apptID,
		VisitAt:       appt.StartsAt,
	}
	return nil
}

// AdvanceInput carries the answers the next step may need.
type AdvanceInput struct {
	// ConfirmCompleted confirms the treatment is finished when leaving
	// charting with a plan that is not yet Completed.
	ConfirmCompleted bool `json:"confirm_completed"`
}

// Advance moves to the next step once the current one is satisfied.
func (w *Workflow) Advance(ctx context.Context, d *Draft, in AdvanceInput) error {
	switch d.Step {
	case StepAppointment:
		if !d.HasPatient() {
			return ErrNoPatient
		}
	case StepTreatmentPlan:
		for i := range d.Plan.Lines {
			if err := d.Plan.Lines[i].Validate(); err != nil {
				return err
			}
		}
		if d.Plan.Status == treatment.StatusPending {
			d.Plan.Status = treatment.StatusOngoing
		}
	case StepCharting:
		if err := w.confirmCompleted(ctx, d, in); err != nil {
			return err
		}
	case StepNote:
		return ErrLastStep
	}
	d.Step++
	if d.Step == StepCharting {
		w.populateChart(d)
	}
	d.touch()
	return nil
}

func (w *Workflow) confirmCompleted(ctx context.Context, d *Draft, in AdvanceInput) error {
	if d.Plan.Status == treatment.StatusCompleted {
		return nil
	}
	if !in.ConfirmCompleted {
		return ErrCompletionNotConfirmed
	}
	if !d.Plan.Persisted() {
		d.Plan.Status = treatment.StatusCompleted
		return nil
	}
	// Save on a copy so that line ids assigned inside a rolled back
	// transaction never reach the draft.
	plan := d.Plan
	plan.Lines = append([]treatment.ServiceLine(nil), d.Plan.Lines...)
	plan.Status = treatment.StatusCompleted
	err := w.tx.InTx(ctx, func(ctx context.Context) error {
		_, err := w.plans.Save(ctx, &plan)
		return err
	})
	if err != nil {
		return fmt.Errorf("complete treatment plan: %w", err)
	}
	d.Plan = plan
	return nil
}

// Retreat moves back one step. It does nothing on the first step.
func (w *Workflow) Retreat(d *Draft) {
	if d.Step == StepAppointment {
		return
	}
	d.Step--
	if d.Step == StepCharting {
		w.populateChart(d)
	}
	d.touch()
}

// populateChart derives a condition for every tooth a plan line targets.
// Records the practitioner edited by hand are left alone.
func (w *Workflow) populateChart(d *Draft) {
	if d.Chart == nil {
		d.Chart = make(map[int]charting.ToothRecord)
	}
	for n, rec := range d.Chart {
		if rec.Source == charting.SourceAuto {
			delete(d.Chart, n)
		}
	}
	for _, l := range d.Plan.Lines {
		if l.ToothNumber == nil {
			continue
		}
		n := *l.ToothNumber
		if rec, ok := d.Chart[n]; ok && rec.Source == charting.SourceManual {
			continue
		}
		procedure := l.ServiceName
		d.Chart[n] = charting.ToothRecord{
			PatientID:     d.PatientID,
			ToothNumber:   n,
			Condition:     w.rules.Derive(l.ServiceName, l.ServiceCategory),
			ProcedureType: &procedure,
			Source:        charting.SourceAuto,
		}
	}
}

// PlanInput edits the draft plan. Lines that are already stored are kept;
// the given lines replace the unsaved ones.
type PlanInput struct {
	Name        string                  `json:"name"`
	Description *string                 `json:"description"`
	Lines       []treatment.ServiceLine `json:"lines"`
}

func (w *Workflow) SetPlan(ctx context.Context, d *Draft, in PlanInput) error {
	if err := requireStep(d, StepTreatmentPlan); err != nil {
		return err
	}
	if treatment.IsTerminal(d.Plan.Status) {
		return ErrPlanCompleted
	}
	lines := make([]treatment.ServiceLine, 0, len(d.Plan.Lines)+len(in.Lines))
	for _, l := range d.Plan.Lines {
		if l.ID != uuid.Nil {
			lines = append(lines, l)
		}
	}
	for _, l := range in.Lines {
		if l.ID != uuid.Nil {
			continue
		}
		svc, err := w.catalog.Service(ctx, l.ServiceID)
		if err != nil {
			return fmt.Errorf("%w: service %s: %v", treatment.ErrInvalidLine, l.ServiceID, err)
		}
		l.ServiceName = svc.Name
		l.ServiceCategory = svc.Category
		if !l.EstimatedCost.Valid {
			l.EstimatedCost = decimal.NewNullDecimal(svc.Fee)
		}
		if l.Status == "" {
			l.Status = treatment.StatusPending
		}
		if err := l.Validate(); err != nil {
			return err
		}
		l.Priority = len(lines) + 1
		lines = append(lines, l)
	}
	if strings.TrimSpace(in.Name) != "" {
		d.Plan.Name = strings.TrimSpace(in.Name)
	}
	if in.Description != nil {
		d.Plan.Description = in.Description
	}
	d.Plan.Lines = lines
	d.touch()
	return nil
}

// SetTooth records a manual chart edit. Manual records survive
// auto-population.
func (w *Workflow) SetTooth(ctx context.Context, d *Draft, rec charting.ToothRecord) error {
	if err := requireStep(d, StepCharting); err != nil {
		return err
	}
	if !charting.ValidTooth(rec.ToothNumber) {
		return fmt.Errorf("%w: %d", charting.ErrInvalidTooth, rec.ToothNumber)
	}
	rec.Condition = strings.TrimSpace(rec.Condition)
	if rec.Condition == "" {
		rec.Condition = charting.DefaultCondition
	}
	known, err := w.catalog.ToothConditions(ctx)
	if err != nil {
		return fmt.Errorf("load tooth conditions: %w", err)
	}
	if len(known) > 0 {
		found := strings.EqualFold(rec.Condition, charting.DefaultCondition)
		for _, c := range known {
			if strings.EqualFold(c.Name, rec.Condition) {
				rec.Condition = c.Name
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrUnknownCondition, rec.Condition)
		}
	}
	rec.PatientID = d.PatientID
	rec.Source = charting.SourceManual
	d.Chart[rec.ToothNumber] = rec
	d.touch()
	return nil
}

// AddPrescription adds rx to the draft; a stocked medicine is also added to
// the material list.
func (w *Workflow) AddPrescription(ctx context.Context, d *Draft, rx prescription.Prescription) error {
	if err := requireStep(d, StepPrescriptions); err != nil {
		return err
	}
	rx.PatientID = d.PatientID
	if rx.PrescriberID == uuid.Nil {
		rx.PrescriberID = d.PractitionerID
	}
	apptID := d.AppointmentID
	rx.AppointmentID = &apptID
	rx.MedicineName = strings.TrimSpace(rx.MedicineName)
	if err := prescription.Validate(&rx); err != nil {
		return err
	}
	materials, merged, err := w.ledger.MergeMedicineUsage(ctx, d.Materials, &rx)
	if err != nil {
		return err
	}
	d.Materials = materials
	d.Prescriptions = append(d.Prescriptions, DraftPrescription{Prescription: rx, Merged: merged})
	d.touch()
	return nil
}

// RemovePrescription drops the prescription at index and takes back what it
// added to the material list.
func (w *Workflow) RemovePrescription(d *Draft, index int) error {
	if err := requireStep(d, StepPrescriptions); err != nil {
		return err
	}
	if index < 0 || index >= len(d.Prescriptions) {
		return fmt.Errorf("%w: %d", ErrPrescriptionIndex, index)
	}
	rx := d.Prescriptions[index]
	if rx.Merged {
		d.Materials = inventory.Unmerge(d.Materials, &rx.Prescription)
	}
	d.Prescriptions = append(d.Prescriptions[:index], d.Prescriptions[index+1:]...)
	d.touch()
	return nil
}

// SetMaterials replaces the material list. A stocked medicine that was
// prescribed never drops below its prescribed quantity; the shortfall is
// merged back in. Prescribed usage is removed through RemovePrescription.
func (w *Workflow) SetMaterials(ctx context.Context, d *Draft, usages []inventory.MaterialUsage) error {
	if err := requireStep(d, StepMaterials); err != nil {
		return err
	}
	for i := range usages {
		usages[i].ItemName = strings.TrimSpace(usages[i].ItemName)
		if err := usages[i].Validate(); err != nil {
			return fmt.Errorf("material %d: %w", i+1, err)
		}
	}
	usages, err := w.keepPrescribed(ctx, d.Prescriptions, usages)
	if err != nil {
		return err
	}
	d.Materials = usages
	d.touch()
	return nil
}

// keepPrescribed tops up the medicine usages of usages so that every merged
// prescription is still covered.
func (w *Workflow) keepPrescribed(ctx context.Context, rxs []DraftPrescription, usages []inventory.MaterialUsage) ([]inventory.MaterialUsage, error) {
	var order []uuid.UUID
	required := make(map[uuid.UUID]int)
	names := make(map[uuid.UUID]string)
	for _, rx := range rxs {
		if !rx.Merged || rx.MedicineID == nil {
			continue
		}
		id := *rx.MedicineID
		if _, ok := required[id]; !ok {
			order = append(order, id)
			names[id] = rx.MedicineName
		}
		required[id] += rx.Units()
	}

	for _, id := range order {
		have := 0
		for _, u := range usages {
			if u.Category != catalog.CategoryMedicine {
				continue
			}
			if (u.ItemID != nil && *u.ItemID == id) || (u.ItemID == nil && strings.EqualFold(u.ItemName, names[id])) {
				have += u.Quantity
			}
		}
		short := required[id] - have
		if short <= 0 {
			continue
		}
		medID := id
		topUp := prescription.Prescription{MedicineID: &medID, MedicineName: names[id], Quantity: strconv.Itoa(short)}
		merged, _, err := w.ledger.MergeMedicineUsage(ctx, usages, &topUp)
		if err != nil {
			return nil, err
		}
		usages = merged
	}
	return usages, nil
}

func (w *Workflow) SetNote(d *Draft, n clinicalnote.Note) error {
	if err := requireStep(d, StepNote); err != nil {
		return err
	}
	n.PatientID = d.PatientID
	apptID := d.AppointmentID
	n.AppointmentID = &apptID
	if n.VisitAt.IsZero() {
		n.VisitAt = d.Note.VisitAt
	}
	d.Note = n
	d.touch()
	return nil
}

// State describes where the draft stands and what the current step still
// needs.
type State struct {
	Step              Step     `json:"step"`
	StepName          string   `json:"step_name"`
	StepCount         int      `json:"step_count"`
	CanAdvance        bool     `json:"can_advance"`
	CanRetreat        bool     `json:"can_retreat"`
	CanCommit         bool     `json:"can_commit"`
	NeedsConfirmation bool     `json:"needs_confirmation"`
	Messages          []string `json:"messages,omitempty"`
}

func (w *Workflow) State(ctx context.Context, d *Draft) State {
	st := State{
		Step:       d.Step,
		StepName:   d.Step.String(),
		StepCount:  StepCount,
		CanAdvance: d.Step < StepNote,
		CanRetreat: d.Step > StepAppointment,
	}
	switch d.Step {
	case StepAppointment:
		if !d.HasPatient() {
			st.CanAdvance = false
			open, err := w.appointments.ListOpenForPractitioner(ctx, d.PractitionerID, w.now())
			switch {
			case err != nil:
				w.logger.Warn().Err(err).Msg("listing open appointments failed")
				st.Messages = append(st.Messages, "open appointments could not be loaded")
			case len(open) == 0:
				st.Messages = append(st.Messages, "no appointment selectable today")
			default:
				st.Messages = append(st.Messages, "select an appointment")
			}
		}
	case StepTreatmentPlan:
		if len(d.Plan.Lines) == 0 {
			st.Messages = append(st.Messages, "treatment plan has no services")
		}
	case StepCharting:
		st.NeedsConfirmation = d.Plan.Status != treatment.StatusCompleted
		if st.NeedsConfirmation {
			st.Messages = append(st.Messages, "confirm the treatment is completed to continue")
		}
	case StepNote:
		st.CanCommit = d.HasPatient()
	}
	return st
}

// OpenAppointments lists what the practitioner can start an encounter from
// today.
func (w *Workflow) OpenAppointments(ctx context.Context, practitionerID uuid.UUID) ([]*scheduling.Appointment, error) {
	return w.appointments.ListOpenForPractitioner(ctx, practitionerID, w.now())
}

package encounter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinicflow/clinic/internal/domain/billing"
	"github.com/clinicflow/clinic/internal/domain/charting"
	"github.com/clinicflow/clinic/internal/domain/clinicalnote"
	"github.com/clinicflow/clinic/internal/domain/inventory"
	"github.com/clinicflow/clinic/internal/domain/prescription"
	"github.com/clinicflow/clinic/internal/domain/treatment"
)

var tracer = otel.Tracer("github.com/clinicflow/clinic/internal/domain/encounter")

// Commit stages in execution order.
const (
	StagePlan          = "treatment_plan"
	StageCharting      = "charting"
	StagePrescriptions = "prescriptions"
	StageMaterials     = "materials"
	StageNote          = "encounter_note"
	StageBilling       = "billing"
	StageClose         = "close"
)

// StageError reports the required commit stage that failed. Nothing of the
// commit is kept when it is returned.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("encounter commit failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type CommitResult struct {
	PlanID       uuid.UUID       `json:"plan_id"`
	NoteID       uuid.UUID       `json:"note_id"`
	InvoiceID    *uuid.UUID      `json:"invoice_id,omitempty"`
	InvoiceTotal decimal.Decimal `json:"invoice_total"`
	StockOuts    []string        `json:"stock_outs,omitempty"`
	Warnings     []string        `json:"warnings,omitempty"`
}

// Commit writes the whole encounter in one transaction: treatment plan,
// chart, prescriptions, material usage, note, then invoice and status
// close. Invoice and close run in their own savepoints; their failures are
// returned as warnings and do not undo the rest. On success the draft is
// reset.
func (w *Workflow) Commit(ctx context.Context, d *Draft) (*CommitResult, error) {
	if !d.HasPatient() {
		return nil, ErrNoPatient
	}
	if err := requireStep(d, StepNote); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "encounter.Commit", trace.WithAttributes(
		attribute.String("encounter.session_id", d.SessionID.String()),
		attribute.String("encounter.appointment_id", d.AppointmentID.String()),
	))
	defer span.End()

	c := newCommit(d)
	res := &CommitResult{}
	err := w.tx.InTx(ctx, func(ctx context.Context) error {
		if err := w.stage(ctx, StagePlan, func(ctx context.Context) error {
			id, err := w.plans.Save(ctx, &c.plan)
			res.PlanID = id
			return err
		}); err != nil {
			return err
		}
		if err := w.stage(ctx, StageCharting, func(ctx context.Context) error {
			_, err := w.charts.Save(ctx, c.chart)
			return err
		}); err != nil {
			return err
		}
		if err := w.stage(ctx, StagePrescriptions, func(ctx context.Context) error {
			for i := range c.prescriptions {
				if err := w.prescriptions.Save(ctx, &c.prescriptions[i]); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
		if err := w.stage(ctx, StageMaterials, func(ctx context.Context) error {
			uc := inventory.UsageContext{
				Actor:        d.PractitionerID.String(),
				PatientLabel: d.PatientID.String(),
				Procedure:    procedureLabel(&c.plan),
			}
			for _, u := range c.materials {
				e, err := w.ledger.RecordUsage(ctx, u, uc)
				if err != nil {
					return err
				}
				res.StockOuts = append(res.StockOuts, e.ReferenceCode)
			}
			return nil
		}); err != nil {
			return err
		}
		if err := w.stage(ctx, StageNote, func(ctx context.Context) error {
			c.prepareNote(res.PlanID)
			if err := w.finalizer.SaveNote(ctx, &c.note, d.PractitionerID); err != nil {
				return err
			}
			res.NoteID = c.note.ID
			return nil
		}); err != nil {
			return err
		}

		var inv *billing.Invoice
		if w.bestEffort(ctx, res, StageBilling, func(ctx context.Context) error {
			var err error
			inv, err = w.billing.BuildInvoice(ctx, billing.Input{
				PatientID:     d.PatientID,
				AppointmentID: &c.appointmentID,
				PlanID:        &res.PlanID,
				Lines:         c.plan.Lines,
				Prescriptions: c.prescriptions,
				Materials:     c.materials,
			})
			return err
		}) && inv != nil {
			id := inv.ID
			res.InvoiceID = &id
			res.InvoiceTotal = inv.TotalAmount
		}
		w.bestEffort(ctx, res, StageClose, func(ctx context.Context) error {
			_, err := w.finalizer.CloseEncounter(ctx, res.PlanID, c.appointmentID)
			return err
		})
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		var se *StageError
		if !errors.As(err, &se) {
			err = &StageError{Stage: "transaction", Err: err}
		}
		w.logger.Error().Err(err).Str("session_id", d.SessionID.String()).Msg("encounter commit failed")
		return nil, err
	}

	w.logger.Info().
		Str("session_id", d.SessionID.String()).
		Str("plan_id", res.PlanID.String()).
		Str("note_id", res.NoteID.String()).
		Int("warnings", len(res.Warnings)).
		Msg("encounter committed")
	d.Reset()
	return res, nil
}

func (w *Workflow) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "encounter.stage."+name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name)
		return &StageError{Stage: name, Err: err}
	}
	return nil
}

// bestEffort runs fn in a savepoint. A failure rolls back only fn's writes
// and is recorded as a warning. It reports whether fn succeeded.
func (w *Workflow) bestEffort(ctx context.Context, res *CommitResult, name string, fn func(ctx context.Context) error) bool {
	ctx, span := tracer.Start(ctx, "encounter.stage."+name)
	defer span.End()
	err := w.tx.InTx(ctx, fn)
	if err == nil {
		return true
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, name)
	w.logger.Warn().Err(err).Str("stage", name).Msg("best-effort commit stage failed")
	res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", name, err))
	return false
}

// commitSet is a copy of the draft that the commit may fill in with storage
// ids without touching the draft itself, so a failed commit can be retried.
type commitSet struct {
	appointmentID uuid.UUID
	plan          treatment.Plan
	chart         []charting.ToothRecord
	prescriptions []prescription.Prescription
	materials     []inventory.MaterialUsage
	note          clinicalnote.Note
}

func newCommit(d *Draft) *commitSet {
	c := &commitSet{appointmentID: d.AppointmentID, plan: d.Plan, note: d.Note}
	c.plan.Lines = append([]treatment.ServiceLine(nil), d.Plan.Lines...)

	teeth := make([]int, 0, len(d.Chart))
	for n := range d.Chart {
		teeth = append(teeth, n)
	}
	sort.Ints(teeth)
	for _, n := range teeth {
		rec := d.Chart[n]
		rec.PatientID = d.PatientID
		c.chart = append(c.chart, rec)
	}

	for _, rx := range d.Prescriptions {
		p := rx.Prescription
		p.AppointmentID = &c.appointmentID
		c.prescriptions = append(c.prescriptions, p)
	}
	c.materials = append([]inventory.MaterialUsage(nil), d.Materials...)
	c.note.PatientID = d.PatientID
	c.note.AppointmentID = &c.appointmentID
	return c
}

func (c *commitSet) prepareNote(planID uuid.UUID) {
	c.note.PlanID = &planID
	if c.note.TreatmentRef == "" {
		c.note.TreatmentRef = c.plan.Name
	}
	if c.note.Details.WhatWasDone == "" {
		c.note.Details.WhatWasDone = procedureLabel(&c.plan)
	}
	if len(c.note.Details.Medicines) == 0 {
		for _, rx := range c.prescriptions {
			c.note.Details.Medicines = append(c.note.Details.Medicines, medicineLine(rx))
		}
	}
}

func medicineLine(rx prescription.Prescription) string {
	parts := []string{rx.MedicineName}
	for _, s := range []string{rx.Dosage, rx.Frequency, rx.Duration} {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	return strings.Join(parts, " ")
}

func procedureLabel(p *treatment.Plan) string {
	names := make([]string, 0, len(p.Lines))
	for _, l := range p.Lines {
		if l.ToothNumber != nil {
			names = append(names, fmt.Sprintf("%s (tooth %d)", l.ServiceName, *l.ToothNumber))
			continue
		}
		names = append(names, l.ServiceName)
	}
	return strings.Join(names, ", ")
}

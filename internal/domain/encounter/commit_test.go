package encounter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
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

func TestCommit_DentalCleaning(t *testing.T) {
	e := newEnv(t)
	svc := e.addService("Dental Cleaning", "Preventive", "500")
	a := e.addAppointment(svc.ID, scheduling.StatusScheduled)
	d := e.draftAt(t, a.ID, StepNote)
	session := d.SessionID

	res, err := e.wf.Commit(context.Background(), d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", res.Warnings)
	}
	if res.InvoiceID == nil || !res.InvoiceTotal.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected a 500 invoice, got %v %s", res.InvoiceID, res.InvoiceTotal)
	}
	items := e.w.invItems
	if len(items) != 1 || items[0].Category != billing.LineService || !items[0].Subtotal.Equal(decimal.NewFromInt(500)) {
		t.Errorf("unexpected invoice items %+v", items)
	}

	plan, ok := e.w.plans[res.PlanID]
	if !ok || plan.Status != treatment.StatusCompleted {
		t.Errorf("expected a Completed plan, got %+v", plan)
	}
	if got := e.w.appts[a.ID].Status; got != scheduling.StatusCompleted {
		t.Errorf("expected appointment Completed, got %s", got)
	}

	if len(e.w.notes) != 1 {
		t.Fatalf("expected one note, got %d", len(e.w.notes))
	}
	n := e.w.notes[0]
	if n.ID != res.NoteID || n.PlanID == nil || *n.PlanID != res.PlanID || n.PractitionerID != e.practitioner {
		t.Errorf("note not linked: %+v", n)
	}
	var details clinicalnote.Details
	if err := json.Unmarshal(e.w.payloads[0], &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if details.WhatWasDone != "Dental Cleaning" {
		t.Errorf("expected what-was-done from the plan, got %q", details.WhatWasDone)
	}

	if d.SessionID != session || d.PractitionerID != e.practitioner {
		t.Error("reset must keep the session and practitioner")
	}
	if d.Step != StepAppointment || d.HasPatient() || len(d.Plan.Lines) != 0 {
		t.Errorf("draft not reset: %+v", d)
	}
}

func TestCommit_MedicineUsage(t *testing.T) {
	e := newEnv(t)
	svc := e.addService("Dental Cleaning", "Preventive", "500")
	amox := e.addItem(catalog.CategoryMedicine, "Amoxicillin", "5.00", 100)
	a := e.addAppointment(svc.ID, scheduling.StatusScheduled)
	d := e.draftAt(t, a.ID, StepPrescriptions)

	rx := prescription.Prescription{MedicineName: "Amoxicillin", Dosage: "500mg", Frequency: "3x a day", Duration: "7 days", Quantity: "10"}
	if err := e.wf.AddPrescription(context.Background(), d, rx); err != nil {
		t.Fatalf("AddPrescription: %v", err)
	}
	for d.Step < StepNote {
		if err := e.wf.Advance(context.Background(), d, AdvanceInput{}); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}

	res, err := e.wf.Commit(context.Background(), d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := e.w.items[amox.ID].Quantity; got != 90 {
		t.Errorf("expected 90 left in stock, got %d", got)
	}
	if len(e.w.events) != 1 || e.w.events[0].Quantity != 10 || e.w.events[0].Category != catalog.CategoryMedicine {
		t.Errorf("unexpected stock-out events %+v", e.w.events)
	}
	if len(res.StockOuts) != 1 || res.StockOuts[0] != e.w.events[0].ReferenceCode {
		t.Errorf("unexpected stock-out references %v", res.StockOuts)
	}
	if len(e.w.rxs) != 1 || e.w.rxs[0].MedicineID == nil || *e.w.rxs[0].MedicineID != amox.ID {
		t.Errorf("prescription not stored with its medicine: %+v", e.w.rxs)
	}

	var medicine []billing.LineItem
	for _, it := range e.w.invItems {
		if it.Category == billing.LineMedicine {
			medicine = append(medicine, it)
		}
	}
	if len(medicine) != 1 || medicine[0].Quantity != 10 || !medicine[0].Subtotal.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected one medicine line of 50, got %+v", medicine)
	}
	if !res.InvoiceTotal.Equal(decimal.NewFromInt(550)) {
		t.Errorf("expected total 550, got %s", res.InvoiceTotal)
	}

	var details clinicalnote.Details
	if err := json.Unmarshal(e.w.payloads[0], &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if len(details.Medicines) != 1 || details.Medicines[0] != "Amoxicillin 500mg 3x a day 7 days" {
		t.Errorf("unexpected medicines %v", details.Medicines)
	}
}

func TestCommit_EditedMaterialsKeepPrescribedMedicine(t *testing.T) {
	e := newEnv(t)
	svc := e.addService("Dental Cleaning", "Preventive", "500")
	amox := e.addItem(catalog.CategoryMedicine, "Amoxicillin", "5.00", 100)
	gauze := e.addItem(catalog.CategoryConsumable, "Gauze", "1.00", 50)
	a := e.addAppointment(svc.ID, scheduling.StatusScheduled)
	d := e.draftAt(t, a.ID, StepPrescriptions)

	rx := prescription.Prescription{MedicineName: "Amoxicillin", Dosage: "500mg", Frequency: "3x a day", Duration: "7 days", Quantity: "10"}
	if err := e.wf.AddPrescription(context.Background(), d, rx); err != nil {
		t.Fatalf("AddPrescription: %v", err)
	}
	if err := e.wf.Advance(context.Background(), d, AdvanceInput{}); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	gauzeOnly := []inventory.MaterialUsage{{ItemName: "Gauze", Category: catalog.CategoryConsumable, Quantity: 2}}
	if err := e.wf.SetMaterials(context.Background(), d, gauzeOnly); err != nil {
		t.Fatalf("SetMaterials: %v", err)
	}
	amoxUnits := func() int {
		n := 0
		for _, u := range d.Materials {
			if u.Category == catalog.CategoryMedicine && u.ItemName == "Amoxicillin" {
				n += u.Quantity
			}
		}
		return n
	}
	if got := amoxUnits(); got != 10 {
		t.Fatalf("prescribed medicine dropped from materials, got %d", got)
	}

	echoed := append([]inventory.MaterialUsage(nil), d.Materials...)
	if err := e.wf.SetMaterials(context.Background(), d, echoed); err != nil {
		t.Fatalf("SetMaterials echo: %v", err)
	}
	if got := amoxUnits(); got != 10 {
		t.Errorf("echoing the list must not double the prescription, got %d", got)
	}

	if err := e.wf.Advance(context.Background(), d, AdvanceInput{}); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, err := e.wf.Commit(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := e.w.items[amox.ID].Quantity; got != 90 {
		t.Errorf("expected 90 Amoxicillin left, got %d", got)
	}
	if got := e.w.items[gauze.ID].Quantity; got != 48 {
		t.Errorf("expected 48 Gauze left, got %d", got)
	}
	var amoxEvents int
	for _, ev := range e.w.events {
		if ev.ItemName == "Amoxicillin" && ev.Quantity == 10 {
			amoxEvents++
		}
	}
	if len(e.w.events) != 2 || amoxEvents != 1 {
		t.Errorf("unexpected stock-out events %+v", e.w.events)
	}
}

func TestCommit_HealthyToothClearsStoredCondition(t *testing.T) {
	e := newEnv(t)
	svc := e.addService("Dental Cleaning", "Preventive", "500")
	e.w.teeth[e.patient] = map[int]charting.ToothRecord{
		14: {ID: uuid.New(), PatientID: e.patient, ToothNumber: 14, Condition: "For Filling", Source: charting.SourceManual},
	}
	a := e.addAppointment(svc.ID, scheduling.StatusScheduled)
	d := e.draftAt(t, a.ID, StepCharting)

	if err := e.wf.SetTooth(context.Background(), d, charting.ToothRecord{ToothNumber: 14, Condition: "healthy"}); err != nil {
		t.Fatalf("SetTooth: %v", err)
	}
	for d.Step < StepNote {
		if err := e.wf.Advance(context.Background(), d, AdvanceInput{ConfirmCompleted: true}); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
	if _, err := e.wf.Commit(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec, ok := e.w.teeth[e.patient][14]; ok {
		t.Errorf("expected tooth 14 cleared, still stored as %q", rec.Condition)
	}
}

func TestCommit_ZeroTotalSkipsInvoice(t *testing.T) {
	e := newEnv(t)
	svc := e.addService("Follow-up Check", "General", "0")
	a := e.addAppointment(svc.ID, scheduling.StatusScheduled)
	d := e.draftAt(t, a.ID, StepNote)

	res, err := e.wf.Commit(context.Background(), d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.InvoiceID != nil || len(e.w.invoices) != 0 {
		t.Error("expected no invoice for a zero total")
	}
	if len(res.Warnings) != 0 {
		t.Errorf("a skipped invoice is not a warning: %v", res.Warnings)
	}
	if e.w.plans[res.PlanID].Status != treatment.StatusCompleted {
		t.Error("expected the plan completed")
	}
}

func TestCommit_BillingFailureIsWarning(t *testing.T) {
	e := newEnv(t)
	svc := e.addService("Dental Cleaning", "Preventive", "500")
	a := e.addAppointment(svc.ID, scheduling.StatusScheduled)
	d := e.draftAt(t, a.ID, StepNote)
	e.w.fail["invoice.item"] = errors.New("disk full")

	res, err := e.wf.Commit(context.Background(), d)
	if err != nil {
		t.Fatalf("billing must not fail the commit: %v", err)
	}
	if len(res.Warnings) != 1 || !strings.HasPrefix(res.Warnings[0], StageBilling+": ") {
		t.Errorf("unexpected warnings %v", res.Warnings)
	}
	if res.InvoiceID != nil {
		t.Error("no invoice id expected")
	}
	if len(e.w.invoices) != 0 || len(e.w.invItems) != 0 {
		t.Error("partial invoice must be rolled back")
	}
	if len(e.w.notes) != 1 || e.w.plans[res.PlanID].Status != treatment.StatusCompleted {
		t.Error("clinical writes must survive a billing failure")
	}
	if e.w.appts[a.ID].Status != scheduling.StatusCompleted {
		t.Error("close should still run after a billing failure")
	}
	if d.HasPatient() {
		t.Error("a committed draft is reset")
	}
}

func TestCommit_CloseFailureIsWarning(t *testing.T) {
	e := newEnv(t)
	svc := e.addService("Dental Cleaning", "Preventive", "500")
	a := e.addAppointment(svc.ID, scheduling.StatusScheduled)
	d := e.draftAt(t, a.ID, StepNote)
	e.w.fail["appointment.status"] = errors.New("lock timeout")

	res, err := e.wf.Commit(context.Background(), d)
	if err != nil {
		t.Fatalf("close must not fail the commit: %v", err)
	}
	if len(res.Warnings) != 1 || !strings.HasPrefix(res.Warnings[0], StageClose+": ") {
		t.Errorf("unexpected warnings %v", res.Warnings)
	}
	if res.InvoiceID == nil {
		t.Error("invoice should be kept")
	}
	if e.w.appts[a.ID].Status != scheduling.StatusScheduled {
		t.Error("appointment status should be unchanged")
	}
}

func TestCommit_RequiredStageFailureRollsBack(t *testing.T) {
	e := newEnv(t)
	svc := e.addService("Dental Cleaning", "Preventive", "500")
	amox := e.addItem(catalog.CategoryMedicine, "Amoxicillin", "5.00", 100)
	a := e.addAppointment(svc.ID, scheduling.StatusScheduled)
	d := e.draftAt(t, a.ID, StepPrescriptions)
	if err := e.wf.AddPrescription(context.Background(), d, prescription.Prescription{MedicineName: "Amoxicillin", Quantity: "10"}); err != nil {
		t.Fatalf("AddPrescription: %v", err)
	}
	for d.Step < StepNote {
		if err := e.wf.Advance(context.Background(), d, AdvanceInput{}); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
	e.w.fail["note.create"] = errors.New("connection reset")

	_, err := e.wf.Commit(context.Background(), d)
	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StageError, got %v", err)
	}
	if se.Stage != StageNote {
		t.Errorf("expected stage %s, got %s", StageNote, se.Stage)
	}

	if len(e.w.plans) != 0 || len(e.w.rxs) != 0 || len(e.w.events) != 0 || len(e.w.notes) != 0 {
		t.Error("nothing of a failed commit may remain")
	}
	if e.w.items[amox.ID].Quantity != 100 {
		t.Errorf("stock must be restored, got %d", e.w.items[amox.ID].Quantity)
	}
	if e.w.appts[a.ID].Status != scheduling.StatusScheduled {
		t.Error("appointment must stay open")
	}
	if d.Step != StepNote || !d.HasPatient() || d.Plan.ID != uuid.Nil || len(d.Prescriptions) != 1 {
		t.Errorf("draft must be kept untouched for a retry: %+v", d)
	}

	delete(e.w.fail, "note.create")
	res, err := e.wf.Commit(context.Background(), d)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if e.w.items[amox.ID].Quantity != 90 || len(e.w.events) != 1 {
		t.Error("retry should consume stock exactly once")
	}
	if !res.InvoiceTotal.Equal(decimal.NewFromInt(550)) {
		t.Errorf("expected total 550, got %s", res.InvoiceTotal)
	}
}

func TestCommit_UnknownMaterialStillRecorded(t *testing.T) {
	e := newEnv(t)
	svc := e.addService("Dental Cleaning", "Preventive", "500")
	a := e.addAppointment(svc.ID, scheduling.StatusScheduled)
	d := e.draftAt(t, a.ID, StepMaterials)
	if err := e.wf.SetMaterials(context.Background(), d, []inventory.MaterialUsage{{ItemName: "Prophy Paste", Category: catalog.CategoryConsumable, Quantity: 2}}); err != nil {
		t.Fatalf("SetMaterials: %v", err)
	}
	if err := e.wf.Advance(context.Background(), d, AdvanceInput{}); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	res, err := e.wf.Commit(context.Background(), d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.w.events) != 1 || e.w.events[0].ItemName != "Prophy Paste" {
		t.Errorf("expected the stock-out event, got %+v", e.w.events)
	}
	if !res.InvoiceTotal.Equal(decimal.NewFromInt(500)) {
		t.Errorf("an unpriced material adds nothing, got %s", res.InvoiceTotal)
	}
}

func TestCommit_Preconditions(t *testing.T) {
	e := newEnv(t)
	if _, err := e.wf.Commit(context.Background(), NewDraft(e.practitioner)); !errors.Is(err, ErrNoPatient) {
		t.Errorf("expected ErrNoPatient, got %v", err)
	}

	svc := e.addService("Dental Cleaning", "Preventive", "500")
	a := e.addAppointment(svc.ID, scheduling.StatusScheduled)
	d := e.draftAt(t, a.ID, StepMaterials)
	if _, err := e.wf.Commit(context.Background(), d); !errors.Is(err, ErrWrongStep) {
		t.Errorf("expected ErrWrongStep, got %v", err)
	}
	if e.tx.begins != 0 {
		t.Error("no transaction should start before the note step")
	}
}

func TestStageError(t *testing.T) {
	base := errors.New("boom")
	err := error(&StageError{Stage: StageMaterials, Err: base})
	if !errors.Is(err, base) {
		t.Error("StageError should unwrap")
	}
	if !strings.Contains(err.Error(), StageMaterials) {
		t.Errorf("message should name the stage: %s", err)
	}
}

func TestProcedureLabel(t *testing.T) {
	p := &treatment.Plan{Lines: []treatment.ServiceLine{
		{ServiceName: "Dental Cleaning"},
		{ServiceName: "Composite Filling", ToothNumber: intPtr(19)},
	}}
	if got := procedureLabel(p); got != "Dental Cleaning, Composite Filling (tooth 19)" {
		t.Errorf("unexpected label %q", got)
	}
}

package clinicalnote

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinic/internal/platform/db"
)

type noteRepoPG struct{ pool *pgxpool.Pool }

func NewNoteRepoPG(pool *pgxpool.Pool) NoteRepository { return &noteRepoPG{pool: pool} }

func (r *noteRepoPG) Create(ctx context.Context, n *Note, details []byte) error {
	n.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO encounter_notes (id, patient_id, practitioner_id, appointment_id, plan_id,
			visit_at, chief_complaint, diagnosis, treatment_ref, details, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		n.ID, n.PatientID, n.PractitionerID, n.AppointmentID, n.PlanID, n.VisitAt,
		n.ChiefComplaint, n.Diagnosis, n.TreatmentRef, details, n.Status).Scan(&n.CreatedAt)
}

func (r *noteRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Note, int, error) {
	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM encounter_notes WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, patient_id, practitioner_id, appointment_id, plan_id, visit_at,
			chief_complaint, diagnosis, treatment_ref, details, status, created_at
		FROM encounter_notes WHERE patient_id = $1
		ORDER BY visit_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Note
	for rows.Next() {
		var (
			n       Note
			payload []byte
		)
		if err := rows.Scan(&n.ID, &n.PatientID, &n.PractitionerID, &n.AppointmentID, &n.PlanID,
			&n.VisitAt, &n.ChiefComplaint, &n.Diagnosis, &n.TreatmentRef, &payload, &n.Status,
			&n.CreatedAt); err != nil {
			return nil, 0, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &n.Details); err != nil {
				return nil, 0, err
			}
		}
		out = append(out, &n)
	}
	return out, total, rows.Err()
}

package charting

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinic/internal/platform/db"
)

type toothRecordRepoPG struct{ pool *pgxpool.Pool }

func NewToothRecordRepoPG(pool *pgxpool.Pool) ToothRecordRepository {
	return &toothRecordRepoPG{pool: pool}
}

func (r *toothRecordRepoPG) Upsert(ctx context.Context, rec *ToothRecord) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO tooth_records (id, patient_id, tooth_number, condition, procedure_type, notes, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (patient_id, tooth_number) DO UPDATE SET
			condition = EXCLUDED.condition,
			procedure_type = EXCLUDED.procedure_type,
			notes = EXCLUDED.notes,
			source = EXCLUDED.source,
			updated_at = NOW()
		RETURNING id`,
		uuid.New(), rec.PatientID, rec.ToothNumber, rec.Condition, rec.ProcedureType, rec.Notes, rec.Source).
		Scan(&rec.ID)
}

func (r *toothRecordRepoPG) Delete(ctx context.Context, patientID uuid.UUID, toothNumber int) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM tooth_records WHERE patient_id = $1 AND tooth_number = $2`, patientID, toothNumber)
	return err
}

func (r *toothRecordRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*ToothRecord, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, patient_id, tooth_number, condition, procedure_type, notes, source
		FROM tooth_records WHERE patient_id = $1 ORDER BY tooth_number`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ToothRecord
	for rows.Next() {
		var rec ToothRecord
		if err := rows.Scan(&rec.ID, &rec.PatientID, &rec.ToothNumber, &rec.Condition,
			&rec.ProcedureType, &rec.Notes, &rec.Source); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinic/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptCols = `a.id, a.patient_id, a.practitioner_id, a.service_id, a.starts_at,
	a.status_id, s.name, a.notes`

const apptFrom = ` FROM appointments a JOIN appointment_status s ON s.id = a.status_id`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.PractitionerID, &a.ServiceID, &a.StartsAt,
		&a.StatusID, &a.Status, &a.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+apptCols+apptFrom+` WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) ListForPractitioner(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+apptCols+apptFrom+`
		WHERE a.practitioner_id = $1 AND a.starts_at >= $2 AND a.starts_at < $3
		ORDER BY a.starts_at`, practitionerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) StatusIDByName(ctx context.Context, name string) (int, error) {
	var id int
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id FROM appointment_status WHERE lower(name) = lower($1) ORDER BY id LIMIT 1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}

func (r *appointmentRepoPG) SetStatus(ctx context.Context, id uuid.UUID, statusID int) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE appointments SET status_id = $2, updated_at = NOW()
		WHERE id = $1 AND status_id <> $2`, id, statusID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

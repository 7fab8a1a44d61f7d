package treatment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinic/internal/platform/db"
)

type planRepoPG struct{ pool *pgxpool.Pool }

func NewPlanRepoPG(pool *pgxpool.Pool) PlanRepository { return &planRepoPG{pool: pool} }

const planCols = `id, patient_id, practitioner_id, name, description, status, created_at, updated_at`

const lineCols = `l.id, l.plan_id, l.service_id, s.name, s.category, l.tooth_number,
	l.estimated_cost, l.priority, l.status`

func (r *planRepoPG) scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	err := row.Scan(&p.ID, &p.PatientID, &p.PractitionerID, &p.Name, &p.Description,
		&p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *planRepoPG) withLines(ctx context.Context, p *Plan, err error) (*Plan, error) {
	if err != nil {
		return nil, err
	}
	lines, err := r.Lines(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Lines = lines
	return p, nil
}

func (r *planRepoPG) Create(ctx context.Context, p *Plan) error {
	p.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO treatment_plans (id, patient_id, practitioner_id, name, description, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.PractitionerID, p.Name, p.Description, p.Status).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *planRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Plan, error) {
	p, err := r.scanPlan(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+planCols+` FROM treatment_plans WHERE id = $1`, id))
	return r.withLines(ctx, p, err)
}

func (r *planRepoPG) Update(ctx context.Context, p *Plan) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE treatment_plans SET name = $2, description = $3, status = $4, updated_at = NOW()
		WHERE id = $1`, p.ID, p.Name, p.Description, p.Status)
	return err
}

func (r *planRepoPG) TransitionStatus(ctx context.Context, id uuid.UUID, status string, from []string) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE treatment_plans SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)`, id, status, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *planRepoPG) ActiveForPatient(ctx context.Context, patientID uuid.UUID) (*Plan, error) {
	p, err := r.scanPlan(db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+planCols+` FROM treatment_plans
		WHERE patient_id = $1 AND status IN ('Pending', 'Ongoing')
		ORDER BY created_at DESC LIMIT 1`, patientID))
	return r.withLines(ctx, p, err)
}

func (r *planRepoPG) AddLine(ctx context.Context, l *ServiceLine) error {
	l.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO treatment_plan_services (id, plan_id, service_id, tooth_number,
			estimated_cost, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.PlanID, l.ServiceID, l.ToothNumber, l.EstimatedCost, l.Priority, l.Status)
	return err
}

func (r *planRepoPG) Lines(ctx context.Context, planID uuid.UUID) ([]ServiceLine, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+lineCols+`
		FROM treatment_plan_services l JOIN services s ON s.id = l.service_id
		WHERE l.plan_id = $1 ORDER BY l.priority, l.id`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ServiceLine
	for rows.Next() {
		var l ServiceLine
		if err := rows.Scan(&l.ID, &l.PlanID, &l.ServiceID, &l.ServiceName, &l.ServiceCategory,
			&l.ToothNumber, &l.EstimatedCost, &l.Priority, &l.Status); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

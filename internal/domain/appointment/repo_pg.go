package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
)

const table = "appointments"

const appointmentCols = `id, tenant_id, patient_id, care_professional_id, title, start_time, end_time,
	status, type, location, notes, created_by, updated_by, created_at, updated_at`

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &repoPG{q: q}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.TenantID, &a.PatientID, &a.CareProfessionalID, &a.Title,
		&a.StartTime, &a.EndTime, &a.Status, &a.Type, &a.Location, &a.Notes,
		&a.CreatedBy, &a.UpdatedBy, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func values(a *Appointment) map[string]interface{} {
	return map[string]interface{}{
		"patient_id":           a.PatientID,
		"care_professional_id": a.CareProfessionalID,
		"title":                a.Title,
		"start_time":           a.StartTime,
		"end_time":             a.EndTime,
		"status":               a.Status,
		"type":                 a.Type,
		"location":             a.Location,
		"notes":                a.Notes,
	}
}

func (r *repoPG) Create(ctx context.Context, tenantID uuid.UUID, a *Appointment) error {
	vals := values(a)
	user := auth.UserIDFromContext(ctx)
	vals["created_by"] = user
	vals["updated_by"] = user
	if err := db.TenantInsert(ctx, r.q, tenantID, table, vals,
		"id, created_at, updated_at", &a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	a.TenantID = tenantID
	a.CreatedBy, a.UpdatedBy = &user, &user
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error) {
	row := db.TenantQueryRow(ctx, r.q, tenantID,
		`SELECT `+appointmentCols+` FROM appointments WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, id)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return a, nil
}

func (r *repoPG) Update(ctx context.Context, tenantID uuid.UUID, a *Appointment) error {
	vals := values(a)
	vals["updated_by"] = auth.UserIDFromContext(ctx)
	return db.TenantUpdate(ctx, r.q, tenantID, table, a.ID, vals, "updated_at", &a.UpdatedAt)
}

func (r *repoPG) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status string) error {
	return db.TenantUpdate(ctx, r.q, tenantID, table, id, map[string]interface{}{
		"status":     status,
		"updated_by": auth.UserIDFromContext(ctx),
	}, "")
}

func (r *repoPG) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return db.TenantDelete(ctx, r.q, tenantID, table, id)
}

func (r *repoPG) List(ctx context.Context, tenantID uuid.UUID, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	filter := db.NewFilter().Eq("status", f.Status)
	if f.PatientID != nil {
		filter.Where("patient_id = ?", *f.PatientID)
	}
	if f.CareProfessionalID != nil {
		filter.Where("care_professional_id = ?", *f.CareProfessionalID)
	}
	if f.From != nil {
		filter.Where("end_time > ?", *f.From)
	}
	if f.To != nil {
		filter.Where("start_time < ?", *f.To)
	}

	total, err := db.TenantCount(ctx, r.q, tenantID, table, filter)
	if err != nil {
		return nil, 0, err
	}

	page, args := filter.Paginate(limit, offset)
	rows, err := db.TenantQuery(ctx, r.q, tenantID,
		`SELECT `+appointmentCols+` FROM appointments WHERE `+filter.SQL()+` ORDER BY start_time `+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	items := []*Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Overlaps(ctx context.Context, tenantID, professionalID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := db.TenantQueryRow(ctx, r.q, tenantID, `SELECT EXISTS (
		SELECT 1 FROM appointments
		WHERE tenant_id = $1 AND care_professional_id = $2 AND deleted_at IS NULL
		  AND status NOT IN ('cancelled', 'no-show')
		  AND start_time < $3 AND end_time > $4 AND id <> $5)`,
		professionalID, end, start, exclude).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check appointment overlap: %w", err)
	}
	return exists, nil
}

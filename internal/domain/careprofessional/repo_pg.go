package careprofessional

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
)

const (
	table            = "care_professionals"
	assignmentsTable = "patient_assignments"
)

const professionalCols = `id, tenant_id, first_name, last_name, role, email, phone, registration_number,
	specialty, active, created_by, updated_by, created_at, updated_at`

const assignmentCols = `id, tenant_id, care_professional_id, patient_id, role, start_date, end_date,
	notes, created_by, created_at`

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &repoPG{q: q}
}

func scanProfessional(row pgx.Row) (*CareProfessional, error) {
	var p CareProfessional
	err := row.Scan(&p.ID, &p.TenantID, &p.FirstName, &p.LastName, &p.Role, &p.Email, &p.Phone,
		&p.RegistrationNumber, &p.Specialty, &p.Active,
		&p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.TenantID, &a.CareProfessionalID, &a.PatientID, &a.Role,
		&a.StartDate, &a.EndDate, &a.Notes, &a.CreatedBy, &a.CreatedAt)
	return &a, err
}

func values(p *CareProfessional) map[string]interface{} {
	return map[string]interface{}{
		"first_name":          p.FirstName,
		"last_name":           p.LastName,
		"role":                p.Role,
		"email":               p.Email,
		"phone":               p.Phone,
		"registration_number": p.RegistrationNumber,
		"specialty":           p.Specialty,
		"active":              p.Active,
	}
}

func (r *repoPG) Create(ctx context.Context, tenantID uuid.UUID, p *CareProfessional) error {
	vals := values(p)
	user := auth.UserIDFromContext(ctx)
	vals["created_by"] = user
	vals["updated_by"] = user
	if err := db.TenantInsert(ctx, r.q, tenantID, table, vals,
		"id, created_at, updated_at", &p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("insert care professional: %w", err)
	}
	p.TenantID = tenantID
	p.CreatedBy, p.UpdatedBy = &user, &user
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*CareProfessional, error) {
	row := db.TenantQueryRow(ctx, r.q, tenantID,
		`SELECT `+professionalCols+` FROM care_professionals WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, id)
	p, err := scanProfessional(row)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, tenantID uuid.UUID, p *CareProfessional) error {
	vals := values(p)
	vals["updated_by"] = auth.UserIDFromContext(ctx)
	return db.TenantUpdate(ctx, r.q, tenantID, table, p.ID, vals, "updated_at", &p.UpdatedAt)
}

func (r *repoPG) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return db.TenantDelete(ctx, r.q, tenantID, table, id)
}

func (r *repoPG) List(ctx context.Context, tenantID uuid.UUID, f ListFilter, limit, offset int) ([]*CareProfessional, int, error) {
	filter := db.NewFilter().
		Eq("role", f.Role).
		Search(f.Query, "first_name", "last_name", "email", "registration_number")
	if f.Active != nil {
		filter.Where("active = ?", *f.Active)
	}

	total, err := db.TenantCount(ctx, r.q, tenantID, table, filter)
	if err != nil {
		return nil, 0, err
	}

	page, args := filter.Paginate(limit, offset)
	rows, err := db.TenantQuery(ctx, r.q, tenantID,
		`SELECT `+professionalCols+` FROM care_professionals WHERE `+filter.SQL()+
			` ORDER BY last_name, first_name `+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list care professionals: %w", err)
	}
	defer rows.Close()

	items := []*CareProfessional{}
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) CreateAssignment(ctx context.Context, tenantID uuid.UUID, a *Assignment) error {
	user := auth.UserIDFromContext(ctx)
	vals := map[string]interface{}{
		"care_professional_id": a.CareProfessionalID,
		"patient_id":           a.PatientID,
		"role":                 a.Role,
		"start_date":           a.StartDate,
		"end_date":             a.EndDate,
		"notes":                a.Notes,
		"created_by":           user,
		"updated_by":           user,
	}
	if err := db.TenantInsert(ctx, r.q, tenantID, assignmentsTable, vals,
		"id, created_at", &a.ID, &a.CreatedAt); err != nil {
		return fmt.Errorf("insert patient assignment: %w", err)
	}
	a.TenantID = tenantID
	a.CreatedBy = &user
	return nil
}

func (r *repoPG) ListAssignments(ctx context.Context, tenantID, professionalID uuid.UUID, limit, offset int) ([]*Assignment, int, error) {
	filter := db.NewFilter().Where("care_professional_id = ?", professionalID)

	total, err := db.TenantCount(ctx, r.q, tenantID, assignmentsTable, filter)
	if err != nil {
		return nil, 0, err
	}

	page, args := filter.Paginate(limit, offset)
	rows, err := db.TenantQuery(ctx, r.q, tenantID,
		`SELECT `+assignmentCols+` FROM patient_assignments WHERE `+filter.SQL()+
			` ORDER BY start_date DESC `+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patient assignments: %w", err)
	}
	defer rows.Close()

	items := []*Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) DeleteAssignment(ctx context.Context, tenantID, professionalID, id uuid.UUID) error {
	n, err := db.TenantExec(ctx, r.q, tenantID,
		`UPDATE patient_assignments SET deleted_at = NOW(), updated_at = NOW(), updated_by = $4
		 WHERE tenant_id = $1 AND care_professional_id = $2 AND id = $3 AND deleted_at IS NULL`,
		professionalID, id, auth.UserIDFromContext(ctx))
	if err != nil {
		return fmt.Errorf("delete patient assignment: %w", err)
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

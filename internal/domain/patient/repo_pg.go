package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
)

const table = "patients"

const patientCols = `id, tenant_id, first_name, last_name, date_of_birth, gender,
	nhs_number, email, phone, address, status, created_by, updated_by, created_at, updated_at`

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &repoPG{q: q}
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.TenantID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.NHSNumber, &p.Email, &p.Phone, &p.Address, &p.Status,
		&p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func values(p *Patient) map[string]interface{} {
	return map[string]interface{}{
		"first_name":    p.FirstName,
		"last_name":     p.LastName,
		"date_of_birth": p.DateOfBirth,
		"gender":        p.Gender,
		"nhs_number":    p.NHSNumber,
		"email":         p.Email,
		"phone":         p.Phone,
		"address":       p.Address,
		"status":        p.Status,
	}
}

func (r *repoPG) Create(ctx context.Context, tenantID uuid.UUID, p *Patient) error {
	vals := values(p)
	user := auth.UserIDFromContext(ctx)
	vals["created_by"] = user
	vals["updated_by"] = user
	err := db.TenantInsert(ctx, r.q, tenantID, table, vals,
		"id, created_at, updated_at", &p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	p.TenantID = tenantID
	p.CreatedBy, p.UpdatedBy = &user, &user
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Patient, error) {
	row := db.TenantQueryRow(ctx, r.q, tenantID,
		`SELECT `+patientCols+` FROM patients WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, id)
	p, err := scanPatient(row)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, tenantID uuid.UUID, p *Patient) error {
	vals := values(p)
	vals["updated_by"] = auth.UserIDFromContext(ctx)
	return db.TenantUpdate(ctx, r.q, tenantID, table, p.ID, vals, "updated_at", &p.UpdatedAt)
}

func (r *repoPG) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return db.TenantDelete(ctx, r.q, tenantID, table, id)
}

func (r *repoPG) List(ctx context.Context, tenantID uuid.UUID, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	filter := db.NewFilter().
		Eq("status", f.Status).
		Search(f.Query, "first_name", "last_name", "nhs_number", "email")

	total, err := db.TenantCount(ctx, r.q, tenantID, table, filter)
	if err != nil {
		return nil, 0, err
	}

	page, args := filter.Paginate(limit, offset)
	rows, err := db.TenantQuery(ctx, r.q, tenantID,
		`SELECT `+patientCols+` FROM patients WHERE `+filter.SQL()+` ORDER BY last_name, first_name `+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	items := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

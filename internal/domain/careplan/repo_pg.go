package careplan

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
)

const table = "care_plans"

const carePlanCols = `id, tenant_id, patient_id, title, description, status, start_date, end_date,
	review_date, goals, created_by, updated_by, created_at, updated_at`

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &repoPG{q: q}
}

func scanCarePlan(row pgx.Row) (*CarePlan, error) {
	var p CarePlan
	err := row.Scan(&p.ID, &p.TenantID, &p.PatientID, &p.Title, &p.Description, &p.Status,
		&p.StartDate, &p.EndDate, &p.ReviewDate, &p.Goals,
		&p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func values(p *CarePlan) map[string]interface{} {
	return map[string]interface{}{
		"patient_id":  p.PatientID,
		"title":       p.Title,
		"description": p.Description,
		"status":      p.Status,
		"start_date":  p.StartDate,
		"end_date":    p.EndDate,
		"review_date": p.ReviewDate,
		"goals":       p.Goals,
	}
}

func (r *repoPG) Create(ctx context.Context, tenantID uuid.UUID, p *CarePlan) error {
	vals := values(p)
	user := auth.UserIDFromContext(ctx)
	vals["created_by"] = user
	vals["updated_by"] = user
	if err := db.TenantInsert(ctx, r.q, tenantID, table, vals,
		"id, created_at, updated_at", &p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("insert care plan: %w", err)
	}
	p.TenantID = tenantID
	p.CreatedBy, p.UpdatedBy = &user, &user
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*CarePlan, error) {
	row := db.TenantQueryRow(ctx, r.q, tenantID,
		`SELECT `+carePlanCols+` FROM care_plans WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, id)
	p, err := scanCarePlan(row)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, tenantID uuid.UUID, p *CarePlan) error {
	vals := values(p)
	vals["updated_by"] = auth.UserIDFromContext(ctx)
	return db.TenantUpdate(ctx, r.q, tenantID, table, p.ID, vals, "updated_at", &p.UpdatedAt)
}

func (r *repoPG) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return db.TenantDelete(ctx, r.q, tenantID, table, id)
}

func (r *repoPG) List(ctx context.Context, tenantID uuid.UUID, f ListFilter, limit, offset int) ([]*CarePlan, int, error) {
	filter := db.NewFilter().Eq("status", f.Status)
	if f.PatientID != nil {
		filter.Where("patient_id = ?", *f.PatientID)
	}

	total, err := db.TenantCount(ctx, r.q, tenantID, table, filter)
	if err != nil {
		return nil, 0, err
	}

	page, args := filter.Paginate(limit, offset)
	rows, err := db.TenantQuery(ctx, r.q, tenantID,
		`SELECT `+carePlanCols+` FROM care_plans WHERE `+filter.SQL()+` ORDER BY start_date DESC, created_at DESC `+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list care plans: %w", err)
	}
	defer rows.Close()

	items := []*CarePlan{}
	for rows.Next() {
		p, err := scanCarePlan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

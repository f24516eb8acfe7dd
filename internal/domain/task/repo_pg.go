package task

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
)

const table = "tasks"

const taskCols = `id, tenant_id, title, description, patient_id, assigned_to, due_date, priority,
	status, completed_at, created_by, updated_by, created_at, updated_at`

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &repoPG{q: q}
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.TenantID, &t.Title, &t.Description, &t.PatientID, &t.AssignedTo,
		&t.DueDate, &t.Priority, &t.Status, &t.CompletedAt,
		&t.CreatedBy, &t.UpdatedBy, &t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func values(t *Task) map[string]interface{} {
	return map[string]interface{}{
		"title":        t.Title,
		"description":  t.Description,
		"patient_id":   t.PatientID,
		"assigned_to":  t.AssignedTo,
		"due_date":     t.DueDate,
		"priority":     t.Priority,
		"status":       t.Status,
		"completed_at": t.CompletedAt,
	}
}

func (r *repoPG) Create(ctx context.Context, tenantID uuid.UUID, t *Task) error {
	vals := values(t)
	user := auth.UserIDFromContext(ctx)
	vals["created_by"] = user
	vals["updated_by"] = user
	if err := db.TenantInsert(ctx, r.q, tenantID, table, vals,
		"id, created_at, updated_at", &t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	t.TenantID = tenantID
	t.CreatedBy, t.UpdatedBy = &user, &user
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Task, error) {
	row := db.TenantQueryRow(ctx, r.q, tenantID,
		`SELECT `+taskCols+` FROM tasks WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return t, nil
}

func (r *repoPG) Update(ctx context.Context, tenantID uuid.UUID, t *Task) error {
	vals := values(t)
	vals["updated_by"] = auth.UserIDFromContext(ctx)
	return db.TenantUpdate(ctx, r.q, tenantID, table, t.ID, vals, "updated_at", &t.UpdatedAt)
}

func (r *repoPG) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return db.TenantDelete(ctx, r.q, tenantID, table, id)
}

func (r *repoPG) List(ctx context.Context, tenantID uuid.UUID, f ListFilter, limit, offset int) ([]*Task, int, error) {
	filter := db.NewFilter().
		Eq("status", f.Status).
		Eq("priority", f.Priority).
		Eq("assigned_to", f.AssignedTo)
	if f.PatientID != nil {
		filter.Where("patient_id = ?", *f.PatientID)
	}

	total, err := db.TenantCount(ctx, r.q, tenantID, table, filter)
	if err != nil {
		return nil, 0, err
	}

	page, args := filter.Paginate(limit, offset)
	rows, err := db.TenantQuery(ctx, r.q, tenantID,
		`SELECT `+taskCols+` FROM tasks WHERE `+filter.SQL()+
			` ORDER BY due_date NULLS LAST, created_at DESC `+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

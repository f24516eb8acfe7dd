package medicalhistory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
)

const table = "patient_medical_history"

const entryCols = `id, tenant_id, patient_id, category, title, description, onset_date, resolved_date,
	severity, status, source, external_id, created_by, updated_by, created_at, updated_at`

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &repoPG{q: q}
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.TenantID, &e.PatientID, &e.Category, &e.Title, &e.Description,
		&e.OnsetDate, &e.ResolvedDate, &e.Severity, &e.Status, &e.Source, &e.ExternalID,
		&e.CreatedBy, &e.UpdatedBy, &e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

func values(e *Entry) map[string]interface{} {
	return map[string]interface{}{
		"category":      e.Category,
		"title":         e.Title,
		"description":   e.Description,
		"onset_date":    e.OnsetDate,
		"resolved_date": e.ResolvedDate,
		"severity":      e.Severity,
		"status":        e.Status,
	}
}

func (r *repoPG) Create(ctx context.Context, tenantID uuid.UUID, e *Entry) error {
	vals := values(e)
	vals["patient_id"] = e.PatientID
	vals["source"] = e.Source
	vals["external_id"] = e.ExternalID
	user := auth.UserIDFromContext(ctx)
	vals["created_by"] = user
	vals["updated_by"] = user
	if err := db.TenantInsert(ctx, r.q, tenantID, table, vals,
		"id, created_at, updated_at", &e.ID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return fmt.Errorf("insert medical history: %w", err)
	}
	e.TenantID = tenantID
	e.CreatedBy, e.UpdatedBy = &user, &user
	return nil
}

func (r *repoPG) Upsert(ctx context.Context, tenantID uuid.UUID, e *Entry) error {
	vals := values(e)
	vals["patient_id"] = e.PatientID
	vals["source"] = e.Source
	vals["external_id"] = e.ExternalID
	vals["updated_by"] = e.Source
	if err := db.TenantUpsert(ctx, r.q, tenantID, table, vals,
		[]string{"tenant_id", "patient_id", "source", "external_id"},
		"id, created_at, updated_at", &e.ID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return fmt.Errorf("upsert medical history: %w", err)
	}
	e.TenantID = tenantID
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, tenantID, patientID, id uuid.UUID) (*Entry, error) {
	row := db.TenantQueryRow(ctx, r.q, tenantID,
		`SELECT `+entryCols+` FROM patient_medical_history
		 WHERE tenant_id = $1 AND patient_id = $2 AND id = $3 AND deleted_at IS NULL`, patientID, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return e, nil
}

func (r *repoPG) Update(ctx context.Context, tenantID uuid.UUID, e *Entry) error {
	vals := values(e)
	vals["updated_by"] = auth.UserIDFromContext(ctx)
	return db.TenantUpdate(ctx, r.q, tenantID, table, e.ID, vals, "updated_at", &e.UpdatedAt)
}

func (r *repoPG) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return db.TenantDelete(ctx, r.q, tenantID, table, id)
}

func (r *repoPG) ListByPatient(ctx context.Context, tenantID, patientID uuid.UUID, category string, limit, offset int) ([]*Entry, int, error) {
	filter := db.NewFilter().Where("patient_id = ?", patientID).Eq("category", category)

	total, err := db.TenantCount(ctx, r.q, tenantID, table, filter)
	if err != nil {
		return nil, 0, err
	}

	page, args := filter.Paginate(limit, offset)
	rows, err := db.TenantQuery(ctx, r.q, tenantID,
		`SELECT `+entryCols+` FROM patient_medical_history WHERE `+filter.SQL()+
			` ORDER BY onset_date DESC NULLS LAST, created_at DESC `+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list medical history: %w", err)
	}
	defer rows.Close()

	items := []*Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

package document

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
)

const table = "documents"

const documentCols = `id, tenant_id, patient_id, title, category, file_name, mime_type, size_bytes,
	storage_url, created_by, updated_by, created_at, updated_at`

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &repoPG{q: q}
}

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.TenantID, &d.PatientID, &d.Title, &d.Category, &d.FileName,
		&d.MimeType, &d.SizeBytes, &d.StorageURL, &d.CreatedBy, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func values(d *Document) map[string]interface{} {
	return map[string]interface{}{
		"title":       d.Title,
		"category":    d.Category,
		"file_name":   d.FileName,
		"mime_type":   d.MimeType,
		"size_bytes":  d.SizeBytes,
		"storage_url": d.StorageURL,
	}
}

func (r *repoPG) Create(ctx context.Context, tenantID uuid.UUID, d *Document) error {
	vals := values(d)
	vals["patient_id"] = d.PatientID
	user := auth.UserIDFromContext(ctx)
	vals["created_by"] = user
	vals["updated_by"] = user
	if err := db.TenantInsert(ctx, r.q, tenantID, table, vals,
		"id, created_at, updated_at", &d.ID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	d.TenantID = tenantID
	d.CreatedBy, d.UpdatedBy = &user, &user
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Document, error) {
	row := db.TenantQueryRow(ctx, r.q, tenantID,
		`SELECT `+documentCols+` FROM documents WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, id)
	d, err := scanDocument(row)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return d, nil
}

func (r *repoPG) Update(ctx context.Context, tenantID uuid.UUID, d *Document) error {
	vals := values(d)
	vals["updated_by"] = auth.UserIDFromContext(ctx)
	return db.TenantUpdate(ctx, r.q, tenantID, table, d.ID, vals, "updated_at", &d.UpdatedAt)
}

func (r *repoPG) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return db.TenantDelete(ctx, r.q, tenantID, table, id)
}

func (r *repoPG) ListByPatient(ctx context.Context, tenantID, patientID uuid.UUID, category string, limit, offset int) ([]*Document, int, error) {
	filter := db.NewFilter().Where("patient_id = ?", patientID).Eq("category", category)

	total, err := db.TenantCount(ctx, r.q, tenantID, table, filter)
	if err != nil {
		return nil, 0, err
	}

	page, args := filter.Paginate(limit, offset)
	rows, err := db.TenantQuery(ctx, r.q, tenantID,
		`SELECT `+documentCols+` FROM documents WHERE `+filter.SQL()+` ORDER BY created_at DESC `+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := []*Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

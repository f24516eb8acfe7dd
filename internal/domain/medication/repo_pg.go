package medication

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
)

const table = "medications"

const medicationCols = `id, tenant_id, patient_id, name, dosage, frequency, route, start_date, end_date,
	status, prescribed_by, created_by, updated_by, created_at, updated_at`

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &repoPG{q: q}
}

func scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.TenantID, &m.PatientID, &m.Name, &m.Dosage, &m.Frequency, &m.Route,
		&m.StartDate, &m.EndDate, &m.Status, &m.PrescribedBy,
		&m.CreatedBy, &m.UpdatedBy, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func values(m *Medication) map[string]interface{} {
	return map[string]interface{}{
		"name":          m.Name,
		"dosage":        m.Dosage,
		"frequency":     m.Frequency,
		"route":         m.Route,
		"start_date":    m.StartDate,
		"end_date":      m.EndDate,
		"status":        m.Status,
		"prescribed_by": m.PrescribedBy,
	}
}

func (r *repoPG) Create(ctx context.Context, tenantID uuid.UUID, m *Medication) error {
	vals := values(m)
	vals["patient_id"] = m.PatientID
	user := auth.UserIDFromContext(ctx)
	vals["created_by"] = user
	vals["updated_by"] = user
	if err := db.TenantInsert(ctx, r.q, tenantID, table, vals,
		"id, created_at, updated_at", &m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return fmt.Errorf("insert medication: %w", err)
	}
	m.TenantID = tenantID
	m.CreatedBy, m.UpdatedBy = &user, &user
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Medication, error) {
	row := db.TenantQueryRow(ctx, r.q, tenantID,
		`SELECT `+medicationCols+` FROM medications WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, id)
	m, err := scanMedication(row)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return m, nil
}

func (r *repoPG) Update(ctx context.Context, tenantID uuid.UUID, m *Medication) error {
	vals := values(m)
	vals["updated_by"] = auth.UserIDFromContext(ctx)
	return db.TenantUpdate(ctx, r.q, tenantID, table, m.ID, vals, "updated_at", &m.UpdatedAt)
}

func (r *repoPG) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return db.TenantDelete(ctx, r.q, tenantID, table, id)
}

func (r *repoPG) ListByPatient(ctx context.Context, tenantID, patientID uuid.UUID, status string, limit, offset int) ([]*Medication, int, error) {
	filter := db.NewFilter().Where("patient_id = ?", patientID).Eq("status", status)

	total, err := db.TenantCount(ctx, r.q, tenantID, table, filter)
	if err != nil {
		return nil, 0, err
	}

	page, args := filter.Paginate(limit, offset)
	rows, err := db.TenantQuery(ctx, r.q, tenantID,
		`SELECT `+medicationCols+` FROM medications WHERE `+filter.SQL()+` ORDER BY start_date DESC, name `+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()

	items := []*Medication{}
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

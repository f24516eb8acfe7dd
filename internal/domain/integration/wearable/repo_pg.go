package wearable

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
)

const (
	devicesTable  = "wearable_devices"
	readingsTable = "wearable_readings"
)

const deviceCols = `id, tenant_id, patient_id, provider, device_identifier, display_name, access_token,
	status, last_synced_at, created_by, updated_by, created_at, updated_at`

const readingCols = `id, tenant_id, device_id, patient_id, reading_type, value, unit, recorded_at, created_at`

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &repoPG{q: q}
}

func scanDevice(row pgx.Row) (*Device, error) {
	var d Device
	err := row.Scan(&d.ID, &d.TenantID, &d.PatientID, &d.Provider, &d.DeviceIdentifier, &d.DisplayName,
		&d.AccessToken, &d.Status, &d.LastSyncedAt, &d.CreatedBy, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func scanReading(row pgx.Row) (*Reading, error) {
	var r Reading
	err := row.Scan(&r.ID, &r.TenantID, &r.DeviceID, &r.PatientID, &r.ReadingType, &r.Value,
		&r.Unit, &r.RecordedAt, &r.CreatedAt)
	return &r, err
}

func deviceValues(d *Device) map[string]interface{} {
	return map[string]interface{}{
		"provider":          d.Provider,
		"device_identifier": d.DeviceIdentifier,
		"display_name":      d.DisplayName,
		"access_token":      d.AccessToken,
		"status":            d.Status,
	}
}

func (r *repoPG) CreateDevice(ctx context.Context, tenantID uuid.UUID, d *Device) error {
	vals := deviceValues(d)
	vals["patient_id"] = d.PatientID
	user := auth.UserIDFromContext(ctx)
	vals["created_by"] = user
	vals["updated_by"] = user
	if err := db.TenantInsert(ctx, r.q, tenantID, devicesTable, vals,
		"id, created_at, updated_at", &d.ID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return fmt.Errorf("insert wearable device: %w", err)
	}
	d.TenantID = tenantID
	d.CreatedBy, d.UpdatedBy = &user, &user
	return nil
}

func (r *repoPG) GetDevice(ctx context.Context, tenantID, id uuid.UUID) (*Device, error) {
	row := db.TenantQueryRow(ctx, r.q, tenantID,
		`SELECT `+deviceCols+` FROM wearable_devices WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, id)
	d, err := scanDevice(row)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return d, nil
}

func (r *repoPG) UpdateDevice(ctx context.Context, tenantID uuid.UUID, d *Device) error {
	vals := deviceValues(d)
	vals["updated_by"] = auth.UserIDFromContext(ctx)
	return db.TenantUpdate(ctx, r.q, tenantID, devicesTable, d.ID, vals, "updated_at", &d.UpdatedAt)
}

func (r *repoPG) DeleteDevice(ctx context.Context, tenantID, id uuid.UUID) error {
	return db.TenantDelete(ctx, r.q, tenantID, devicesTable, id)
}

func (r *repoPG) ListDevices(ctx context.Context, tenantID, patientID uuid.UUID) ([]*Device, error) {
	rows, err := db.TenantQuery(ctx, r.q, tenantID,
		`SELECT `+deviceCols+` FROM wearable_devices
		 WHERE tenant_id = $1 AND patient_id = $2 AND deleted_at IS NULL
		 ORDER BY created_at`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list wearable devices: %w", err)
	}
	defer rows.Close()

	items := []*Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *repoPG) MarkSynced(ctx context.Context, tenantID, id uuid.UUID, status string, at *time.Time) error {
	vals := map[string]interface{}{"status": status}
	if at != nil {
		vals["last_synced_at"] = *at
	}
	return db.TenantUpdate(ctx, r.q, tenantID, devicesTable, id, vals, "")
}

func (r *repoPG) InsertReading(ctx context.Context, tenantID uuid.UUID, rd *Reading) (bool, error) {
	inserted, err := db.TenantInsertIgnore(ctx, r.q, tenantID, readingsTable, map[string]interface{}{
		"device_id":    rd.DeviceID,
		"patient_id":   rd.PatientID,
		"reading_type": rd.ReadingType,
		"value":        rd.Value,
		"unit":         rd.Unit,
		"recorded_at":  rd.RecordedAt,
	}, []string{"tenant_id", "device_id", "reading_type", "recorded_at"})
	if err != nil {
		return false, fmt.Errorf("insert wearable reading: %w", err)
	}
	rd.TenantID = tenantID
	return inserted, nil
}

func (r *repoPG) ListReadings(ctx context.Context, tenantID, deviceID uuid.UUID, f ReadingFilter, limit, offset int) ([]*Reading, int, error) {
	filter := db.NewAppendOnlyFilter().Where("device_id = ?", deviceID).Eq("reading_type", f.Type)
	if f.From != nil {
		filter.Where("recorded_at >= ?", *f.From)
	}
	if f.To != nil {
		filter.Where("recorded_at < ?", *f.To)
	}

	total, err := db.TenantCount(ctx, r.q, tenantID, readingsTable, filter)
	if err != nil {
		return nil, 0, err
	}

	page, args := filter.Paginate(limit, offset)
	rows, err := db.TenantQuery(ctx, r.q, tenantID,
		`SELECT `+readingCols+` FROM wearable_readings WHERE `+filter.SQL()+
			` ORDER BY recorded_at DESC `+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list wearable readings: %w", err)
	}
	defer rows.Close()

	items := []*Reading{}
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rd)
	}
	return items, total, rows.Err()
}

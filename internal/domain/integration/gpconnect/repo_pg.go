package gpconnect

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
)

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &repoPG{q: q}
}

func (r *repoPG) Get(ctx context.Context, tenantID uuid.UUID) (*Settings, error) {
	var s Settings
	err := db.TenantQueryRow(ctx, r.q, tenantID,
		`SELECT id, tenant_id, enabled, ods_code, asid, endpoint_url, last_synced_at, created_at, updated_at
		 FROM gp_connect_settings WHERE tenant_id = $1 AND deleted_at IS NULL`).
		Scan(&s.ID, &s.TenantID, &s.Enabled, &s.ODSCode, &s.ASID, &s.EndpointURL, &s.LastSyncedAt,
			&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &s, nil
}

func (r *repoPG) Save(ctx context.Context, tenantID uuid.UUID, s *Settings) error {
	err := db.TenantUpsert(ctx, r.q, tenantID, "gp_connect_settings", map[string]interface{}{
		"enabled":      s.Enabled,
		"ods_code":     s.ODSCode,
		"asid":         s.ASID,
		"endpoint_url": s.EndpointURL,
		"updated_by":   auth.UserIDFromContext(ctx),
	}, []string{"tenant_id"}, "id, created_at, updated_at", &s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save gp connect settings: %w", err)
	}
	s.TenantID = tenantID
	return nil
}

func (r *repoPG) MarkSynced(ctx context.Context, tenantID uuid.UUID, at time.Time) error {
	n, err := db.TenantExec(ctx, r.q, tenantID,
		`UPDATE gp_connect_settings SET last_synced_at = $2, updated_at = NOW()
		 WHERE tenant_id = $1 AND deleted_at IS NULL`, at)
	if err != nil {
		return fmt.Errorf("mark gp connect synced: %w", err)
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

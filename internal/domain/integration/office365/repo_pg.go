package office365

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
)

const table = "office365_integration"

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &repoPG{q: q}
}

func (r *repoPG) Get(ctx context.Context, tenantID uuid.UUID) (*Settings, error) {
	var s Settings
	err := db.TenantQueryRow(ctx, r.q, tenantID,
		`SELECT id, tenant_id, enabled, client_id, tenant_directory_id, access_token, refresh_token,
		        token_expires_at, sync_calendar, sync_contacts, last_synced_at, created_at, updated_at
		 FROM office365_integration WHERE tenant_id = $1 AND deleted_at IS NULL`).
		Scan(&s.ID, &s.TenantID, &s.Enabled, &s.ClientID, &s.TenantDirectoryID, &s.AccessToken,
			&s.RefreshToken, &s.TokenExpiresAt, &s.SyncCalendar, &s.SyncContacts, &s.LastSyncedAt,
			&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	s.Connected = s.RefreshToken != nil && *s.RefreshToken != ""
	return &s, nil
}

func (r *repoPG) SaveSettings(ctx context.Context, tenantID uuid.UUID, s *Settings) error {
	user := auth.UserIDFromContext(ctx)
	err := db.TenantUpsert(ctx, r.q, tenantID, table, map[string]interface{}{
		"enabled":             s.Enabled,
		"client_id":           s.ClientID,
		"tenant_directory_id": s.TenantDirectoryID,
		"sync_calendar":       s.SyncCalendar,
		"sync_contacts":       s.SyncContacts,
		"updated_by":          user,
	}, []string{"tenant_id"}, "id, created_at, updated_at", &s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save office 365 settings: %w", err)
	}
	s.TenantID = tenantID
	return nil
}

func (r *repoPG) SaveToken(ctx context.Context, tenantID uuid.UUID, tok Token) error {
	err := db.TenantUpsert(ctx, r.q, tenantID, table, map[string]interface{}{
		"access_token":     tok.AccessToken,
		"refresh_token":    tok.RefreshToken,
		"token_expires_at": tok.Expiry,
	}, []string{"tenant_id"}, "")
	if err != nil {
		return fmt.Errorf("save office 365 token: %w", err)
	}
	return nil
}

func (r *repoPG) ClearToken(ctx context.Context, tenantID uuid.UUID) error {
	n, err := db.TenantExec(ctx, r.q, tenantID,
		`UPDATE office365_integration
		 SET access_token = NULL, refresh_token = NULL, token_expires_at = NULL, updated_at = NOW()
		 WHERE tenant_id = $1 AND deleted_at IS NULL`)
	if err != nil {
		return fmt.Errorf("clear office 365 token: %w", err)
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

package activity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/careadmin/careadmin/internal/platform/db"
)

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &repoPG{q: q}
}

const entryCols = `id, tenant_id, user_id, action, entity_type, entity_id, details, ip_address, created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var ip *string
	err := row.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Action, &e.EntityType, &e.EntityID, &e.Details, &ip, &e.CreatedAt)
	if ip != nil {
		e.IPAddress = *ip
	}
	return &e, err
}

func (r *repoPG) Insert(ctx context.Context, e *Entry) error {
	values := map[string]interface{}{
		"user_id":     e.UserID,
		"action":      e.Action,
		"entity_type": e.EntityType,
		"entity_id":   e.EntityID,
		"details":     e.Details,
	}
	if e.IPAddress != "" {
		values["ip_address"] = e.IPAddress
	}
	return db.TenantInsert(ctx, r.q, e.TenantID, "activity_logs", values, "id, created_at", &e.ID, &e.CreatedAt)
}

func (r *repoPG) List(ctx context.Context, tenantID uuid.UUID, f ListFilter, limit, offset int) ([]*Entry, int, error) {
	filter := db.NewAppendOnlyFilter().
		Eq("entity_type", f.EntityType).
		Eq("user_id", f.UserID).
		Eq("action", f.Action)
	if f.EntityID != nil {
		filter.Where("entity_id = ?", *f.EntityID)
	}

	total, err := db.TenantCount(ctx, r.q, tenantID, "activity_logs", filter)
	if err != nil {
		return nil, 0, err
	}

	page, args := filter.Paginate(limit, offset)
	rows, err := db.TenantQuery(ctx, r.q, tenantID,
		`SELECT `+entryCols+` FROM activity_logs WHERE `+filter.SQL()+` ORDER BY created_at DESC `+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list activity: %w", err)
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

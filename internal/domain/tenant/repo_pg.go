package tenant

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
	membersTable     = "tenant_users"
	invitationsTable = "tenant_invitations"
)

const tenantCols = `id, name, slug, status, plan, contact_email, settings, created_at, updated_at`

const memberCols = `id, tenant_id, user_id, email, role, created_at, updated_at`

const invitationCols = `id, tenant_id, email, role, token, expires_at, accepted_at, created_by, created_at`

type pgDB interface {
	db.Querier
	db.TxBeginner
}

type repoPG struct{ db pgDB }

func NewRepoPG(pool pgDB) Repository {
	return &repoPG{db: pool}
}

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Status, &t.Plan, &t.ContactEmail, &t.Settings,
		&t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.TenantID, &m.UserID, &m.Email, &m.Role, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var i Invitation
	err := row.Scan(&i.ID, &i.TenantID, &i.Email, &i.Role, &i.Token, &i.ExpiresAt, &i.AcceptedAt,
		&i.CreatedBy, &i.CreatedAt)
	return &i, err
}

func (r *repoPG) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.db, fn)
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	row := db.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+tenantCols+` FROM tenants WHERE id = $1 AND deleted_at IS NULL`, id)
	t, err := scanTenant(row)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return t, nil
}

func (r *repoPG) Create(ctx context.Context, t *Tenant) error {
	if t.Settings == nil {
		t.Settings = map[string]interface{}{}
	}
	err := db.Conn(ctx, r.db).QueryRow(ctx,
		`INSERT INTO tenants (name, slug, status, plan, contact_email, settings)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		t.Name, t.Slug, t.Status, t.Plan, t.ContactEmail, t.Settings,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (r *repoPG) Update(ctx context.Context, t *Tenant) error {
	err := db.Conn(ctx, r.db).QueryRow(ctx,
		`UPDATE tenants SET name = $2, contact_email = $3, settings = $4, updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING updated_at`,
		t.ID, t.Name, t.ContactEmail, t.Settings,
	).Scan(&t.UpdatedAt)
	return db.NotFound(err)
}

func (r *repoPG) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := db.Conn(ctx, r.db).Exec(ctx,
		`UPDATE tenants SET status = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id, status)
	if err != nil {
		return fmt.Errorf("update tenant status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *repoPG) ListMembers(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Member, int, error) {
	filter := db.NewFilter()
	total, err := db.TenantCount(ctx, r.db, tenantID, membersTable, filter)
	if err != nil {
		return nil, 0, err
	}

	page, args := filter.Paginate(limit, offset)
	rows, err := db.TenantQuery(ctx, r.db, tenantID,
		`SELECT `+memberCols+` FROM tenant_users WHERE `+filter.SQL()+` ORDER BY email `+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tenant users: %w", err)
	}
	defer rows.Close()

	items := []*Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *repoPG) GetMember(ctx context.Context, tenantID uuid.UUID, userID string) (*Member, error) {
	row := db.TenantQueryRow(ctx, r.db, tenantID,
		`SELECT `+memberCols+` FROM tenant_users WHERE tenant_id = $1 AND user_id = $2 AND deleted_at IS NULL`, userID)
	m, err := scanMember(row)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return m, nil
}

func (r *repoPG) AddMember(ctx context.Context, tenantID uuid.UUID, m *Member) error {
	actor := auth.UserIDFromContext(ctx)
	if err := db.TenantInsert(ctx, r.db, tenantID, membersTable, map[string]interface{}{
		"user_id":    m.UserID,
		"email":      m.Email,
		"role":       m.Role,
		"created_by": actor,
		"updated_by": actor,
	}, "id, created_at, updated_at", &m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return fmt.Errorf("insert tenant user: %w", err)
	}
	m.TenantID = tenantID
	return nil
}

func (r *repoPG) UpdateMemberRole(ctx context.Context, tenantID uuid.UUID, userID, role string) error {
	n, err := db.TenantExec(ctx, r.db, tenantID,
		`UPDATE tenant_users SET role = $3, updated_by = $4, updated_at = NOW()
		 WHERE tenant_id = $1 AND user_id = $2 AND deleted_at IS NULL`,
		userID, role, auth.UserIDFromContext(ctx))
	if err != nil {
		return fmt.Errorf("update tenant user role: %w", err)
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *repoPG) RemoveMember(ctx context.Context, tenantID uuid.UUID, userID string) error {
	n, err := db.TenantExec(ctx, r.db, tenantID,
		`UPDATE tenant_users SET deleted_at = NOW(), updated_by = $3, updated_at = NOW()
		 WHERE tenant_id = $1 AND user_id = $2 AND deleted_at IS NULL`,
		userID, auth.UserIDFromContext(ctx))
	if err != nil {
		return fmt.Errorf("remove tenant user: %w", err)
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *repoPG) CountOwners(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return db.TenantCount(ctx, r.db, tenantID, membersTable, db.NewFilter().Eq("role", "owner"))
}

func (r *repoPG) CreateInvitation(ctx context.Context, tenantID uuid.UUID, inv *Invitation) error {
	actor := auth.UserIDFromContext(ctx)
	if err := db.TenantInsert(ctx, r.db, tenantID, invitationsTable, map[string]interface{}{
		"email":      inv.Email,
		"role":       inv.Role,
		"token":      inv.Token,
		"expires_at": inv.ExpiresAt,
		"created_by": actor,
		"updated_by": actor,
	}, "id, created_at", &inv.ID, &inv.CreatedAt); err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	inv.TenantID = tenantID
	if actor != "" {
		inv.CreatedBy = &actor
	}
	return nil
}

func (r *repoPG) ListInvitations(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Invitation, int, error) {
	filter := db.NewFilter().Where("accepted_at IS NULL")
	total, err := db.TenantCount(ctx, r.db, tenantID, invitationsTable, filter)
	if err != nil {
		return nil, 0, err
	}

	page, args := filter.Paginate(limit, offset)
	rows, err := db.TenantQuery(ctx, r.db, tenantID,
		`SELECT `+invitationCols+` FROM tenant_invitations WHERE `+filter.SQL()+` ORDER BY created_at DESC `+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	items := []*Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, 0, err
		}
		inv.Token = ""
		items = append(items, inv)
	}
	return items, total, rows.Err()
}

func (r *repoPG) InvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	row := db.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+invitationCols+` FROM tenant_invitations WHERE token = $1 AND deleted_at IS NULL`, token)
	inv, err := scanInvitation(row)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return inv, nil
}

func (r *repoPG) MarkAccepted(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error {
	return db.TenantUpdate(ctx, r.db, tenantID, invitationsTable, id, map[string]interface{}{
		"accepted_at": at,
		"updated_by":  auth.UserIDFromContext(ctx),
	}, "")
}

func (r *repoPG) RevokeInvitation(ctx context.Context, tenantID, id uuid.UUID) error {
	return db.TenantDelete(ctx, r.db, tenantID, invitationsTable, id)
}

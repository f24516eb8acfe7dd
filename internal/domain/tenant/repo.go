package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists tenants and their memberships. The tenants table is
// the root of tenancy, so its lookups are keyed by id or slug alone.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Tenant, error)
	Create(ctx context.Context, t *Tenant) error
	Update(ctx context.Context, t *Tenant) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error

	ListMembers(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Member, int, error)
	GetMember(ctx context.Context, tenantID uuid.UUID, userID string) (*Member, error)
	AddMember(ctx context.Context, tenantID uuid.UUID, m *Member) error
	UpdateMemberRole(ctx context.Context, tenantID uuid.UUID, userID, role string) error
	RemoveMember(ctx context.Context, tenantID uuid.UUID, userID string) error
	CountOwners(ctx context.Context, tenantID uuid.UUID) (int, error)

	CreateInvitation(ctx context.Context, tenantID uuid.UUID, inv *Invitation) error
	ListInvitations(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Invitation, int, error)
	// InvitationByToken finds an invitation before the caller's tenant is
	// known; the token itself is the credential.
	InvitationByToken(ctx context.Context, token string) (*Invitation, error)
	MarkAccepted(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error
	RevokeInvitation(ctx context.Context, tenantID, id uuid.UUID) error

	// InTx runs fn in a single transaction.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

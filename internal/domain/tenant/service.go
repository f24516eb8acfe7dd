package tenant

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/cache"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/kv"
)

const (
	entityType           = "tenant"
	memberEntityType     = "tenant_user"
	invitationEntityType = "tenant_invitation"
)

// FlagDefaults writes a new tenant's feature flags.
type FlagDefaults interface {
	ApplyDefaults(ctx context.Context, tenantID uuid.UUID) error
}

type Service struct {
	repo     Repository
	cache    *cache.Cache
	ttl      time.Duration
	flags    FlagDefaults
	activity activity.Recorder
	logger   zerolog.Logger
	now      func() time.Time
	newToken func() (string, error)
}

// NewService wires the tenant service. c and flags may be nil.
func NewService(repo Repository, c *cache.Cache, flags FlagDefaults, rec activity.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    c,
		ttl:      cache.DefaultTTL,
		flags:    flags,
		activity: rec,
		logger:   logger.With().Str("component", "tenant").Logger(),
		now:      time.Now,
		newToken: randomToken,
	}
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate invitation token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Get returns a tenant through the cache.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return cache.GetOrLoad(ctx, s.cache, kv.TenantKey(id), s.ttl, func(ctx context.Context) (*Tenant, error) {
		return s.repo.Get(ctx, id)
	})
}

func (s *Service) Current(ctx context.Context) (*Tenant, error) {
	return s.Get(ctx, db.TenantFromContext(ctx))
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, kv.TenantKey(id))
	}
}

func (s *Service) UpdateCurrent(ctx context.Context, in UpdateInput) (*Tenant, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	tenantID := db.TenantFromContext(ctx)
	t, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	t.Name = in.Name
	t.ContactEmail = in.ContactEmail
	if in.Settings != nil {
		t.Settings = in.Settings
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.invalidate(ctx, tenantID)
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionUpdate,
		EntityType: entityType,
		EntityID:   &t.ID,
	})
	return t, nil
}

// SetStatus suspends, archives or reactivates a tenant. Archiving also drops
// the tenant's cached patients.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, in StatusInput) (*Tenant, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	if err := s.repo.SetStatus(ctx, id, in.Status); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	if in.Status == StatusArchived && s.cache != nil {
		s.cache.InvalidateNamespace(ctx, kv.PatientNamespace(id))
	}
	s.activity.Record(db.WithTenant(ctx, id), activity.Entry{
		TenantID:   id,
		Action:     activity.ActionUpdate,
		EntityType: entityType,
		EntityID:   &id,
		Details:    map[string]interface{}{"status": in.Status},
	})
	return s.repo.Get(ctx, id)
}

// Provision creates a tenant, its default feature flags and an owner
// invitation for ownerEmail.
func (s *Service) Provision(ctx context.Context, in ProvisionInput) (*Provisioned, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	if in.Plan == "" {
		in.Plan = "trial"
	}
	email := strings.ToLower(in.OwnerEmail)
	t := &Tenant{
		Name:         in.Name,
		Slug:         in.Slug,
		Status:       StatusActive,
		Plan:         in.Plan,
		ContactEmail: &email,
		Settings:     map[string]interface{}{},
	}

	var inv *Invitation
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, t); err != nil {
			if db.IsUniqueViolation(err) {
				return apperr.Conflict("tenant slug %q is already taken", in.Slug)
			}
			return err
		}
		var err error
		inv, err = s.invite(ctx, t.ID, email, auth.RoleOwner)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.flags != nil {
		if err := s.flags.ApplyDefaults(ctx, t.ID); err != nil {
			s.logger.Warn().Err(err).Str("tenant_id", t.ID.String()).Msg("apply default feature flags")
		}
	}
	s.activity.Record(db.WithTenant(ctx, t.ID), activity.Entry{
		TenantID:   t.ID,
		Action:     activity.ActionCreate,
		EntityType: entityType,
		EntityID:   &t.ID,
		Details:    map[string]interface{}{"slug": t.Slug, "plan": t.Plan},
	})
	s.logger.Info().Str("tenant_id", t.ID.String()).Str("slug", t.Slug).Msg("tenant provisioned")
	return &Provisioned{Tenant: t, OwnerInvitation: inv}, nil
}

// Member returns the membership of userID in tenantID.
func (s *Service) Member(ctx context.Context, tenantID uuid.UUID, userID string) (*Member, error) {
	if userID == "" {
		return nil, db.ErrNotFound
	}
	return s.repo.GetMember(ctx, tenantID, userID)
}

func (s *Service) ListMembers(ctx context.Context, limit, offset int) ([]*Member, int, error) {
	return s.repo.ListMembers(ctx, db.TenantFromContext(ctx), limit, offset)
}

// guardLastOwner refuses changes that would leave the tenant without an
// owner.
func (s *Service) guardLastOwner(ctx context.Context, tenantID uuid.UUID, m *Member) error {
	if m.Role != auth.RoleOwner {
		return nil
	}
	owners, err := s.repo.CountOwners(ctx, tenantID)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return apperr.Conflict("a tenant must keep at least one owner")
	}
	return nil
}

func (s *Service) UpdateMemberRole(ctx context.Context, userID string, in RoleInput) (*Member, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	tenantID := db.TenantFromContext(ctx)
	m, err := s.repo.GetMember(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if in.Role == auth.RoleOwner && !isOwner(ctx) {
		return nil, apperr.Forbidden("only an owner can grant the owner role")
	}
	if in.Role != auth.RoleOwner {
		if err := s.guardLastOwner(ctx, tenantID, m); err != nil {
			return nil, err
		}
	}
	from := m.Role
	if err := s.repo.UpdateMemberRole(ctx, tenantID, userID, in.Role); err != nil {
		return nil, err
	}
	m.Role = in.Role
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionUpdate,
		EntityType: memberEntityType,
		EntityID:   &m.ID,
		Details:    map[string]interface{}{"user_id": userID, "role_from": from, "role_to": in.Role},
	})
	return m, nil
}

func (s *Service) RemoveMember(ctx context.Context, userID string) error {
	tenantID := db.TenantFromContext(ctx)
	m, err := s.repo.GetMember(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if err := s.guardLastOwner(ctx, tenantID, m); err != nil {
		return err
	}
	if err := s.repo.RemoveMember(ctx, tenantID, userID); err != nil {
		return err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionDelete,
		EntityType: memberEntityType,
		EntityID:   &m.ID,
		Details:    map[string]interface{}{"user_id": userID},
	})
	return nil
}

func (s *Service) invite(ctx context.Context, tenantID uuid.UUID, email, role string) (*Invitation, error) {
	token, err := s.newToken()
	if err != nil {
		return nil, err
	}
	inv := &Invitation{
		Email:     strings.ToLower(email),
		Role:      role,
		Token:     token,
		ExpiresAt: s.now().UTC().Add(InvitationTTL),
	}
	if err := s.repo.CreateInvitation(ctx, tenantID, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Invite creates an invitation. The token is returned only here.
func (s *Service) Invite(ctx context.Context, in InvitationInput) (*Invitation, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	inv, err := s.invite(ctx, db.TenantFromContext(ctx), in.Email, in.Role)
	if err != nil {
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionCreate,
		EntityType: invitationEntityType,
		EntityID:   &inv.ID,
		Details:    map[string]interface{}{"email": inv.Email, "role": inv.Role},
	})
	return inv, nil
}

func (s *Service) ListInvitations(ctx context.Context, limit, offset int) ([]*Invitation, int, error) {
	return s.repo.ListInvitations(ctx, db.TenantFromContext(ctx), limit, offset)
}

// Accept joins the calling user to the invitation's tenant with the invited
// role. The caller's email must match the invitation when it is known.
func (s *Service) Accept(ctx context.Context, token string) (*Member, error) {
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		return nil, apperr.Forbidden("accepting an invitation requires a signed-in user")
	}
	inv, err := s.repo.InvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.AcceptedAt != nil {
		return nil, apperr.Conflict("invitation has already been accepted")
	}
	if !inv.Pending(s.now()) {
		return nil, apperr.Invalid("token", "invitation has expired")
	}
	if email := auth.EmailFromContext(ctx); email != "" && !strings.EqualFold(email, inv.Email) {
		return nil, apperr.Forbidden("invitation was issued to a different email address")
	}

	m := &Member{UserID: userID, Email: inv.Email, Role: inv.Role}
	ctx = db.WithTenant(ctx, inv.TenantID)
	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.MarkAccepted(ctx, inv.TenantID, inv.ID, s.now().UTC()); err != nil {
			return err
		}
		if err := s.repo.AddMember(ctx, inv.TenantID, m); err != nil {
			if db.IsUniqueViolation(err) {
				return apperr.Conflict("user is already a member of this tenant")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionCreate,
		EntityType: memberEntityType,
		EntityID:   &m.ID,
		Details:    map[string]interface{}{"invitation_id": inv.ID.String(), "role": m.Role},
	})
	return m, nil
}

func (s *Service) RevokeInvitation(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.RevokeInvitation(ctx, db.TenantFromContext(ctx), id); err != nil {
		return err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionDelete,
		EntityType: invitationEntityType,
		EntityID:   &id,
	})
	return nil
}

func isOwner(ctx context.Context) bool {
	for _, r := range auth.RolesFromContext(ctx) {
		if r == auth.RoleOwner {
			return true
		}
	}
	return false
}

package tenant

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusArchived  = "archived"

	// InvitationTTL is how long an invitation token can be accepted.
	InvitationTTL = 7 * 24 * time.Hour
)

type Tenant struct {
	ID           uuid.UUID              `db:"id" json:"id"`
	Name         string                 `db:"name" json:"name"`
	Slug         string                 `db:"slug" json:"slug"`
	Status       string                 `db:"status" json:"status"`
	Plan         string                 `db:"plan" json:"plan"`
	ContactEmail *string                `db:"contact_email" json:"contact_email,omitempty"`
	Settings     map[string]interface{} `db:"settings" json:"settings"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time              `db:"updated_at" json:"updated_at"`
}

// Member is a user's membership of a tenant.
type Member struct {
	ID        uuid.UUID `db:"id" json:"id"`
	TenantID  uuid.UUID `db:"tenant_id" json:"tenant_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type Invitation struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	TenantID   uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	Email      string     `db:"email" json:"email"`
	Role       string     `db:"role" json:"role"`
	Token      string     `db:"token" json:"token,omitempty"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	AcceptedAt *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	CreatedBy  *string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

func (i *Invitation) Pending(now time.Time) bool {
	return i.AcceptedAt == nil && now.Before(i.ExpiresAt)
}

type UpdateInput struct {
	Name         string                 `json:"name" validate:"required,max=200"`
	ContactEmail *string                `json:"contact_email" validate:"omitempty,email,max=320"`
	Settings     map[string]interface{} `json:"settings"`
}

type RoleInput struct {
	Role string `json:"role" validate:"required,oneof=owner admin clinician staff viewer"`
}

type InvitationInput struct {
	Email string `json:"email" validate:"required,email,max=320"`
	Role  string `json:"role" validate:"required,oneof=admin clinician staff viewer"`
}

type ProvisionInput struct {
	Name       string `json:"name" validate:"required,max=200"`
	Slug       string `json:"slug" validate:"required,slug"`
	OwnerEmail string `json:"owner_email" validate:"required,email,max=320"`
	Plan       string `json:"plan" validate:"omitempty,oneof=trial standard enterprise"`
}

type StatusInput struct {
	Status string `json:"status" validate:"required,oneof=active suspended archived"`
}

// Provisioned is a new tenant and the invitation its owner uses to join.
type Provisioned struct {
	Tenant          *Tenant     `json:"tenant"`
	OwnerInvitation *Invitation `json:"owner_invitation"`
}

// Package office365 connects a tenant to Microsoft 365 through the OAuth2
// authorization code flow and keeps its Graph tokens fresh.
package office365

import (
	"time"

	"github.com/google/uuid"
)

const (
	// StateTTL bounds how long an authorize redirect may take to come back.
	StateTTL = 10 * time.Minute

	// DefaultDirectory is the multi-tenant Azure AD authority.
	DefaultDirectory = "common"
)

// Scopes requested on connect. offline_access yields a refresh token.
var Scopes = []string{
	"offline_access",
	"User.Read",
	"Calendars.ReadWrite",
	"Contacts.Read",
}

type Settings struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	TenantID          uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	Enabled           bool       `db:"enabled" json:"enabled"`
	ClientID          *string    `db:"client_id" json:"client_id,omitempty"`
	TenantDirectoryID *string    `db:"tenant_directory_id" json:"tenant_directory_id,omitempty"`
	AccessToken       *string    `db:"access_token" json:"-"`
	RefreshToken      *string    `db:"refresh_token" json:"-"`
	TokenExpiresAt    *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	SyncCalendar      bool       `db:"sync_calendar" json:"sync_calendar"`
	SyncContacts      bool       `db:"sync_contacts" json:"sync_contacts"`
	LastSyncedAt      *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`

	Connected bool `json:"connected"`
}

func (s *Settings) directory() string {
	if s.TenantDirectoryID != nil && *s.TenantDirectoryID != "" {
		return *s.TenantDirectoryID
	}
	return DefaultDirectory
}

type SettingsInput struct {
	Enabled           bool    `json:"enabled"`
	ClientID          *string `json:"client_id" validate:"omitempty,max=255"`
	TenantDirectoryID *string `json:"tenant_directory_id" validate:"omitempty,max=255"`
	SyncCalendar      *bool   `json:"sync_calendar"`
	SyncContacts      *bool   `json:"sync_contacts"`
}

func (in *SettingsInput) apply(s *Settings) {
	s.Enabled = in.Enabled
	s.ClientID = blankToNil(in.ClientID)
	s.TenantDirectoryID = blankToNil(in.TenantDirectoryID)
	if in.SyncCalendar != nil {
		s.SyncCalendar = *in.SyncCalendar
	}
	if in.SyncContacts != nil {
		s.SyncContacts = *in.SyncContacts
	}
}

// Token is the persisted part of an oauth2.Token.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// pendingConnect is stored under the OAuth2 state until the callback.
type pendingConnect struct {
	TenantID uuid.UUID `json:"tenant_id"`
	UserID   string    `json:"user_id"`
}

func blankToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

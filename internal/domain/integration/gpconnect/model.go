// Package gpconnect pulls a patient's structured record from their GP
// practice and folds it into the local medical history.
package gpconnect

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobSync = "gpconnect.sync"
	Queue   = "integrations"
	// Source tags medical history entries imported from GP Connect.
	Source = "gp-connect"
)

type Settings struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	TenantID     uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	Enabled      bool       `db:"enabled" json:"enabled"`
	ODSCode      *string    `db:"ods_code" json:"ods_code,omitempty"`
	ASID         *string    `db:"asid" json:"asid,omitempty"`
	EndpointURL  *string    `db:"endpoint_url" json:"endpoint_url,omitempty"`
	LastSyncedAt *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

type SettingsInput struct {
	Enabled     bool    `json:"enabled"`
	ODSCode     *string `json:"ods_code" validate:"omitempty,alphanum,max=10"`
	ASID        *string `json:"asid" validate:"omitempty,numeric,max=20"`
	EndpointURL *string `json:"endpoint_url" validate:"omitempty,url"`
}

func (in *SettingsInput) apply(s *Settings) {
	s.Enabled = in.Enabled
	s.ODSCode = blankToNil(in.ODSCode)
	s.ASID = blankToNil(in.ASID)
	s.EndpointURL = blankToNil(in.EndpointURL)
}

type syncPayload struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	PatientID uuid.UUID `json:"patient_id"`
}

func blankToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

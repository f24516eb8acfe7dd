// Package wearable registers patients' wearable devices and stores the
// readings pulled from provider APIs or pushed over MQTT.
package wearable

import (
	"time"

	"github.com/google/uuid"
)

const (
	// JobSync is the job type that pulls one device's readings.
	JobSync = "wearable.sync"
	// Queue is where sync jobs are enqueued.
	Queue = "integrations"

	StatusActive       = "active"
	StatusDisconnected = "disconnected"
	StatusError        = "error"

	// backfill is how far back the first sync of a device reaches.
	backfill = 7 * 24 * time.Hour
)

var readingTypes = map[string]bool{
	"heart-rate":     true,
	"steps":          true,
	"sleep":          true,
	"spo2":           true,
	"blood-pressure": true,
	"temperature":    true,
	"weight":         true,
}

type Device struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	TenantID         uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	Provider         string     `db:"provider" json:"provider"`
	DeviceIdentifier string     `db:"device_identifier" json:"device_identifier"`
	DisplayName      *string    `db:"display_name" json:"display_name,omitempty"`
	AccessToken      *string    `db:"access_token" json:"-"`
	Status           string     `db:"status" json:"status"`
	LastSyncedAt     *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
	CreatedBy        *string    `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy        *string    `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

type DeviceInput struct {
	Provider         string  `json:"provider" validate:"required,oneof=fitbit apple-watch garmin withings oura other"`
	DeviceIdentifier string  `json:"device_identifier" validate:"required,max=255"`
	DisplayName      *string `json:"display_name" validate:"omitempty,max=200"`
	AccessToken      *string `json:"access_token"`
	Status           string  `json:"status" validate:"omitempty,oneof=active disconnected error"`
}

func (in *DeviceInput) apply(d *Device) {
	d.Provider = in.Provider
	d.DeviceIdentifier = in.DeviceIdentifier
	d.DisplayName = in.DisplayName
	if d.DisplayName != nil && *d.DisplayName == "" {
		d.DisplayName = nil
	}
	// an omitted token keeps the stored one
	if in.AccessToken != nil {
		d.AccessToken = in.AccessToken
		if *d.AccessToken == "" {
			d.AccessToken = nil
		}
	}
	if in.Status != "" {
		d.Status = in.Status
	}
	if d.Status == "" {
		d.Status = StatusActive
	}
}

type Reading struct {
	ID          uuid.UUID `db:"id" json:"id"`
	TenantID    uuid.UUID `db:"tenant_id" json:"tenant_id"`
	DeviceID    uuid.UUID `db:"device_id" json:"device_id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	ReadingType string    `db:"reading_type" json:"reading_type"`
	Value       float64   `db:"value" json:"value"`
	Unit        string    `db:"unit" json:"unit"`
	RecordedAt  time.Time `db:"recorded_at" json:"recorded_at"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ReadingInput is one measurement as providers and MQTT publishers send it.
type ReadingInput struct {
	Type       string    `json:"type" validate:"required,oneof=heart-rate steps sleep spo2 blood-pressure temperature weight"`
	Value      float64   `json:"value" validate:"gte=0"`
	Unit       string    `json:"unit" validate:"required,max=20"`
	RecordedAt time.Time `json:"recorded_at" validate:"required"`
}

type ReadingFilter struct {
	Type string
	From *time.Time
	To   *time.Time
}

// SyncResult counts what one batch of readings did. Duplicates of stored
// readings and invalid readings are both skipped.
type SyncResult struct {
	Received int `json:"received"`
	Stored   int `json:"stored"`
	Skipped  int `json:"skipped"`
}

type syncPayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
	DeviceID uuid.UUID `json:"device_id"`
}

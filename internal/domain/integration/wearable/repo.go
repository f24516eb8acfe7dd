package wearable

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	CreateDevice(ctx context.Context, tenantID uuid.UUID, d *Device) error
	GetDevice(ctx context.Context, tenantID, id uuid.UUID) (*Device, error)
	UpdateDevice(ctx context.Context, tenantID uuid.UUID, d *Device) error
	DeleteDevice(ctx context.Context, tenantID, id uuid.UUID) error
	ListDevices(ctx context.Context, tenantID, patientID uuid.UUID) ([]*Device, error)
	// MarkSynced sets the device status and, when at is non-nil, its sync
	// cursor.
	MarkSynced(ctx context.Context, tenantID, id uuid.UUID, status string, at *time.Time) error

	// InsertReading reports false when the reading was already stored.
	InsertReading(ctx context.Context, tenantID uuid.UUID, r *Reading) (bool, error)
	ListReadings(ctx context.Context, tenantID, deviceID uuid.UUID, f ReadingFilter, limit, offset int) ([]*Reading, int, error)
}

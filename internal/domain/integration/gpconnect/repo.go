package gpconnect

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*Settings, error)
	Save(ctx context.Context, tenantID uuid.UUID, s *Settings) error
	MarkSynced(ctx context.Context, tenantID uuid.UUID, at time.Time) error
}

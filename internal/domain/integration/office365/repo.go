package office365

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*Settings, error)
	SaveSettings(ctx context.Context, tenantID uuid.UUID, s *Settings) error
	SaveToken(ctx context.Context, tenantID uuid.UUID, tok Token) error
	ClearToken(ctx context.Context, tenantID uuid.UUID) error
}

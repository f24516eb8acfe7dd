package careplan

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, tenantID uuid.UUID, p *CarePlan) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*CarePlan, error)
	Update(ctx context.Context, tenantID uuid.UUID, p *CarePlan) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	List(ctx context.Context, tenantID uuid.UUID, f ListFilter, limit, offset int) ([]*CarePlan, int, error)
}

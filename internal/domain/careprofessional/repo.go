package careprofessional

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, tenantID uuid.UUID, p *CareProfessional) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*CareProfessional, error)
	Update(ctx context.Context, tenantID uuid.UUID, p *CareProfessional) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	List(ctx context.Context, tenantID uuid.UUID, f ListFilter, limit, offset int) ([]*CareProfessional, int, error)

	CreateAssignment(ctx context.Context, tenantID uuid.UUID, a *Assignment) error
	ListAssignments(ctx context.Context, tenantID, professionalID uuid.UUID, limit, offset int) ([]*Assignment, int, error)
	// DeleteAssignment soft-deletes the assignment only if it belongs to
	// professionalID.
	DeleteAssignment(ctx context.Context, tenantID, professionalID, id uuid.UUID) error
}

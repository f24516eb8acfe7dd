package document

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, tenantID uuid.UUID, d *Document) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Document, error)
	Update(ctx context.Context, tenantID uuid.UUID, d *Document) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	ListByPatient(ctx context.Context, tenantID, patientID uuid.UUID, category string, limit, offset int) ([]*Document, int, error)
}

package medication

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, tenantID uuid.UUID, m *Medication) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Medication, error)
	Update(ctx context.Context, tenantID uuid.UUID, m *Medication) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	ListByPatient(ctx context.Context, tenantID, patientID uuid.UUID, status string, limit, offset int) ([]*Medication, int, error)
}

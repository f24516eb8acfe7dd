package medicalhistory

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, tenantID uuid.UUID, e *Entry) error
	// Upsert writes a synced entry keyed by (patient, source, external id).
	Upsert(ctx context.Context, tenantID uuid.UUID, e *Entry) error
	GetByID(ctx context.Context, tenantID, patientID, id uuid.UUID) (*Entry, error)
	Update(ctx context.Context, tenantID uuid.UUID, e *Entry) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	ListByPatient(ctx context.Context, tenantID, patientID uuid.UUID, category string, limit, offset int) ([]*Entry, int, error)
}

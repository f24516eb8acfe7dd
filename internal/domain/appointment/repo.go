package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, tenantID uuid.UUID, a *Appointment) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, tenantID uuid.UUID, a *Appointment) error
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status string) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	List(ctx context.Context, tenantID uuid.UUID, f ListFilter, limit, offset int) ([]*Appointment, int, error)
	// Overlaps reports whether the professional has another live booking
	// intersecting [start, end). exclude is ignored when uuid.Nil.
	Overlaps(ctx context.Context, tenantID, professionalID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error)
}

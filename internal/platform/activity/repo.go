package activity

import (
	"context"

	"github.com/google/uuid"
)

type ListFilter struct {
	EntityType string
	EntityID   *uuid.UUID
	UserID     string
	Action     string
}

type Repository interface {
	Insert(ctx context.Context, e *Entry) error
	List(ctx context.Context, tenantID uuid.UUID, f ListFilter, limit, offset int) ([]*Entry, int, error)
}

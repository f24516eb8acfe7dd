package document

import (
	"context"

	"github.com/google/uuid"

	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/db"
)

const entityType = "document"

var validCategories = map[string]bool{
	"clinical":       true,
	"consent":        true,
	"correspondence": true,
	"report":         true,
	"other":          true,
}

type Service struct {
	repo     Repository
	activity activity.Recorder
}

func NewService(repo Repository, rec activity.Recorder) *Service {
	return &Service{repo: repo, activity: rec}
}

func (s *Service) Create(ctx context.Context, patientID uuid.UUID, in Input) (*Document, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	d := &Document{PatientID: patientID}
	in.apply(d)
	if err := s.repo.Create(ctx, db.TenantFromContext(ctx), d); err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionCreate,
		EntityType: entityType,
		EntityID:   &d.ID,
		Details: map[string]interface{}{
			"patient_id": patientID.String(),
			"file_name":  d.FileName,
			"category":   d.Category,
		},
	})
	return d, nil
}

// Get returns the document and logs the access.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	d, err := s.repo.GetByID(ctx, db.TenantFromContext(ctx), id)
	if err != nil {
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionView,
		EntityType: entityType,
		EntityID:   &d.ID,
	})
	return d, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (*Document, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	tenantID := db.TenantFromContext(ctx)
	d, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	in.apply(d)
	if err := s.repo.Update(ctx, tenantID, d); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionUpdate,
		EntityType: entityType,
		EntityID:   &d.ID,
	})
	return d, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, db.TenantFromContext(ctx), id); err != nil {
		return err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionDelete,
		EntityType: entityType,
		EntityID:   &id,
	})
	return nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, category string, limit, offset int) ([]*Document, int, error) {
	if category != "" && !validCategories[category] {
		return nil, 0, apperr.Invalid("category", "is not a known document category")
	}
	return s.repo.ListByPatient(ctx, db.TenantFromContext(ctx), patientID, category, limit, offset)
}

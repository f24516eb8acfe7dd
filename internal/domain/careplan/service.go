package careplan

import (
	"context"

	"github.com/google/uuid"

	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/db"
)

const entityType = "care_plan"

var validStatuses = map[string]bool{
	"draft":     true,
	"active":    true,
	"on-hold":   true,
	"completed": true,
	"cancelled": true,
}

type Service struct {
	repo     Repository
	activity activity.Recorder
}

func NewService(repo Repository, rec activity.Recorder) *Service {
	return &Service{repo: repo, activity: rec}
}

func validate(in *Input) error {
	if err := apperr.Validate(in); err != nil {
		return err
	}
	ve := &apperr.ValidationError{Message: "validation failed"}
	if in.EndDate != nil && in.EndDate.Before(in.StartDate) {
		ve.Add("end_date", "must not be before start_date")
	}
	if in.ReviewDate != nil && in.ReviewDate.Before(in.StartDate) {
		ve.Add("review_date", "must not be before start_date")
	}
	return ve.OrNil()
}

func (s *Service) Create(ctx context.Context, in Input) (*CarePlan, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}
	p := &CarePlan{}
	in.apply(p)
	if err := s.repo.Create(ctx, db.TenantFromContext(ctx), p); err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, apperr.Invalid("patient_id", "must reference an existing patient")
		}
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionCreate,
		EntityType: entityType,
		EntityID:   &p.ID,
		Details:    map[string]interface{}{"patient_id": p.PatientID.String(), "title": p.Title},
	})
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*CarePlan, error) {
	return s.repo.GetByID(ctx, db.TenantFromContext(ctx), id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (*CarePlan, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}
	tenantID := db.TenantFromContext(ctx)
	p, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	from := p.Status
	in.apply(p)
	if err := s.repo.Update(ctx, tenantID, p); err != nil {
		return nil, err
	}
	details := map[string]interface{}{}
	if from != p.Status {
		details["status_from"] = from
		details["status_to"] = p.Status
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionUpdate,
		EntityType: entityType,
		EntityID:   &p.ID,
		Details:    details,
	})
	return p, nil
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

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*CarePlan, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, apperr.Invalid("status", "is not a known care plan status")
	}
	return s.repo.List(ctx, db.TenantFromContext(ctx), f, limit, offset)
}

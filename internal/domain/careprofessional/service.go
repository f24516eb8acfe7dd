package careprofessional

import (
	"context"

	"github.com/google/uuid"

	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/pkg/civil"
)

const (
	entityType           = "care_professional"
	assignmentEntityType = "patient_assignment"
)

type Service struct {
	repo     Repository
	activity activity.Recorder
	today    func() civil.Date
}

func NewService(repo Repository, rec activity.Recorder) *Service {
	return &Service{repo: repo, activity: rec, today: civil.Today}
}

func (s *Service) Create(ctx context.Context, in Input) (*CareProfessional, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	p := &CareProfessional{Active: true}
	in.apply(p)
	if err := s.repo.Create(ctx, db.TenantFromContext(ctx), p); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionCreate,
		EntityType: entityType,
		EntityID:   &p.ID,
		Details:    map[string]interface{}{"role": p.Role},
	})
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*CareProfessional, error) {
	return s.repo.GetByID(ctx, db.TenantFromContext(ctx), id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (*CareProfessional, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	tenantID := db.TenantFromContext(ctx)
	p, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	in.apply(p)
	if err := s.repo.Update(ctx, tenantID, p); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionUpdate,
		EntityType: entityType,
		EntityID:   &p.ID,
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

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*CareProfessional, int, error) {
	return s.repo.List(ctx, db.TenantFromContext(ctx), f, limit, offset)
}

// Assign links a patient to the professional. A patient can hold only one
// live assignment per professional.
func (s *Service) Assign(ctx context.Context, professionalID uuid.UUID, in AssignmentInput) (*Assignment, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	a := &Assignment{
		CareProfessionalID: professionalID,
		PatientID:          in.PatientID,
		Role:               in.Role,
		EndDate:            in.EndDate,
		Notes:              in.Notes,
	}
	if a.Role == "" {
		a.Role = "primary"
	}
	a.StartDate = s.today()
	if in.StartDate != nil {
		a.StartDate = *in.StartDate
	}
	if a.EndDate != nil && a.EndDate.Before(a.StartDate) {
		return nil, apperr.Invalid("end_date", "must not be before start_date")
	}

	tenantID := db.TenantFromContext(ctx)
	if _, err := s.repo.GetByID(ctx, tenantID, professionalID); err != nil {
		return nil, err
	}
	if err := s.repo.CreateAssignment(ctx, tenantID, a); err != nil {
		switch {
		case db.IsUniqueViolation(err):
			return nil, apperr.Conflict("patient %s is already assigned to this care professional", in.PatientID)
		case db.IsForeignKeyViolation(err):
			return nil, apperr.Invalid("patient_id", "does not reference a patient in this tenant")
		}
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionCreate,
		EntityType: assignmentEntityType,
		EntityID:   &a.ID,
		Details: map[string]interface{}{
			"care_professional_id": professionalID.String(),
			"patient_id":           in.PatientID.String(),
			"role":                 a.Role,
		},
	})
	return a, nil
}

func (s *Service) ListAssignments(ctx context.Context, professionalID uuid.UUID, limit, offset int) ([]*Assignment, int, error) {
	tenantID := db.TenantFromContext(ctx)
	if _, err := s.repo.GetByID(ctx, tenantID, professionalID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListAssignments(ctx, tenantID, professionalID, limit, offset)
}

func (s *Service) Unassign(ctx context.Context, professionalID, assignmentID uuid.UUID) error {
	if err := s.repo.DeleteAssignment(ctx, db.TenantFromContext(ctx), professionalID, assignmentID); err != nil {
		return err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionDelete,
		EntityType: assignmentEntityType,
		EntityID:   &assignmentID,
		Details:    map[string]interface{}{"care_professional_id": professionalID.String()},
	})
	return nil
}

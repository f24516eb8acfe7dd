package medication

import (
	"context"

	"github.com/google/uuid"

	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/db"
)

const entityType = "medication"

var validStatuses = map[string]bool{
	"active":       true,
	"paused":       true,
	"discontinued": true,
	"completed":    true,
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
	if in.EndDate != nil && in.EndDate.Before(in.StartDate) {
		return apperr.Invalid("end_date", "must not be before start_date")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, patientID uuid.UUID, in Input) (*Medication, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}
	m := &Medication{PatientID: patientID}
	in.apply(m)
	if err := s.repo.Create(ctx, db.TenantFromContext(ctx), m); err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionCreate,
		EntityType: entityType,
		EntityID:   &m.ID,
		Details:    map[string]interface{}{"patient_id": patientID.String(), "name": m.Name},
	})
	return m, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return s.repo.GetByID(ctx, db.TenantFromContext(ctx), id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (*Medication, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}
	tenantID := db.TenantFromContext(ctx)
	m, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	in.apply(m)
	if err := s.repo.Update(ctx, tenantID, m); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionUpdate,
		EntityType: entityType,
		EntityID:   &m.ID,
		Details:    map[string]interface{}{"status": m.Status},
	})
	return m, nil
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

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, status string, limit, offset int) ([]*Medication, int, error) {
	if status != "" && !validStatuses[status] {
		return nil, 0, apperr.Invalid("status", "is not a known medication status")
	}
	return s.repo.ListByPatient(ctx, db.TenantFromContext(ctx), patientID, status, limit, offset)
}

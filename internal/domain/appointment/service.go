package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/db"
)

const entityType = "appointment"

// MaxRange bounds a calendar query.
const MaxRange = 366 * 24 * time.Hour

type Service struct {
	repo     Repository
	activity activity.Recorder
}

func NewService(repo Repository, rec activity.Recorder) *Service {
	return &Service{repo: repo, activity: rec}
}

func (s *Service) checkOverlap(ctx context.Context, tenantID uuid.UUID, a *Appointment) error {
	if a.CareProfessionalID == nil || !occupies(a.Status) {
		return nil
	}
	clash, err := s.repo.Overlaps(ctx, tenantID, *a.CareProfessionalID, a.StartTime, a.EndTime, a.ID)
	if err != nil {
		return err
	}
	if clash {
		return apperr.Conflict("care professional already has an appointment between %s and %s",
			a.StartTime.Format(time.RFC3339), a.EndTime.Format(time.RFC3339))
	}
	return nil
}

// errOverlap reports a clash caught by appointments_professional_no_overlap
// after checkOverlap passed.
var errOverlap = apperr.Conflict("care professional already has an appointment in this period")

func mapWriteError(err error) error {
	if db.IsExclusionViolation(err) {
		return errOverlap
	}
	if db.IsForeignKeyViolation(err) {
		return &apperr.ValidationError{Message: "validation failed", Fields: map[string]string{
			"patient_id": "must reference an existing patient and care professional",
		}}
	}
	return err
}

func (s *Service) Create(ctx context.Context, in Input) (*Appointment, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	tenantID := db.TenantFromContext(ctx)
	a := &Appointment{}
	in.apply(a)
	if err := s.checkOverlap(ctx, tenantID, a); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, tenantID, a); err != nil {
		return nil, mapWriteError(err)
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionCreate,
		EntityType: entityType,
		EntityID:   &a.ID,
		Details: map[string]interface{}{
			"patient_id": a.PatientID.String(),
			"start_time": a.StartTime,
		},
	})
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, db.TenantFromContext(ctx), id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (*Appointment, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	tenantID := db.TenantFromContext(ctx)
	a, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	in.apply(a)
	if err := s.checkOverlap(ctx, tenantID, a); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, tenantID, a); err != nil {
		return nil, mapWriteError(err)
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionUpdate,
		EntityType: entityType,
		EntityID:   &a.ID,
	})
	return a, nil
}

// SetStatus changes only the status. Moving a cancelled or missed booking
// back onto the calendar re-runs the overlap check.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, in StatusInput) (*Appointment, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	tenantID := db.TenantFromContext(ctx)
	a, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	from := a.Status
	if from == in.Status {
		return a, nil
	}
	a.Status = in.Status
	if !occupies(from) {
		if err := s.checkOverlap(ctx, tenantID, a); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, id, in.Status); err != nil {
		return nil, mapWriteError(err)
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionUpdate,
		EntityType: entityType,
		EntityID:   &a.ID,
		Details:    map[string]interface{}{"status_from": from, "status_to": in.Status},
	})
	return a, nil
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

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, apperr.Invalid("status", "is not a known appointment status")
	}
	if f.From != nil && f.To != nil {
		if !f.To.After(*f.From) {
			return nil, 0, apperr.Invalid("to", "must be after from")
		}
		if f.To.Sub(*f.From) > MaxRange {
			return nil, 0, apperr.Invalid("to", "range must not exceed 366 days")
		}
	}
	return s.repo.List(ctx, db.TenantFromContext(ctx), f, limit, offset)
}

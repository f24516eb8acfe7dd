package medicalhistory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/db"
)

const entityType = "medical_history"

var validCategories = map[string]bool{
	"condition":    true,
	"surgery":      true,
	"allergy":      true,
	"immunization": true,
	"family":       true,
	"social":       true,
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
	if in.OnsetDate != nil && in.ResolvedDate != nil && in.ResolvedDate.Before(*in.OnsetDate) {
		return apperr.Invalid("resolved_date", "must not be before onset_date")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, patientID uuid.UUID, in Input) (*Entry, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}
	e := &Entry{PatientID: patientID}
	in.apply(e)
	if err := s.repo.Create(ctx, db.TenantFromContext(ctx), e); err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionCreate,
		EntityType: entityType,
		EntityID:   &e.ID,
		Details:    map[string]interface{}{"patient_id": patientID.String(), "category": e.Category},
	})
	return e, nil
}

func (s *Service) Get(ctx context.Context, patientID, id uuid.UUID) (*Entry, error) {
	return s.repo.GetByID(ctx, db.TenantFromContext(ctx), patientID, id)
}

func (s *Service) Update(ctx context.Context, patientID, id uuid.UUID, in Input) (*Entry, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}
	tenantID := db.TenantFromContext(ctx)
	e, err := s.repo.GetByID(ctx, tenantID, patientID, id)
	if err != nil {
		return nil, err
	}
	in.apply(e)
	if err := s.repo.Update(ctx, tenantID, e); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionUpdate,
		EntityType: entityType,
		EntityID:   &e.ID,
	})
	return e, nil
}

func (s *Service) Delete(ctx context.Context, patientID, id uuid.UUID) error {
	tenantID := db.TenantFromContext(ctx)
	if _, err := s.repo.GetByID(ctx, tenantID, patientID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionDelete,
		EntityType: entityType,
		EntityID:   &id,
	})
	return nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, category string, limit, offset int) ([]*Entry, int, error) {
	if category != "" && !validCategories[category] {
		return nil, 0, apperr.Invalid("category", "is not a known medical history category")
	}
	return s.repo.ListByPatient(ctx, db.TenantFromContext(ctx), patientID, category, limit, offset)
}

// Import upserts entries produced by an external system for one patient.
// Each entry must carry an external id; entries that fail validation or
// were deleted locally are skipped and counted. The caller records the sync activity.
func (s *Service) Import(ctx context.Context, tenantID, patientID uuid.UUID, source string, entries []ImportEntry) (ImportResult, error) {
	var res ImportResult
	if source == "" || source == SourceManual {
		return res, fmt.Errorf("import source %q is not an integration", source)
	}
	for _, ie := range entries {
		if ie.ExternalID == "" {
			res.Skipped++
			continue
		}
		in := ie.Input
		if err := validate(&in); err != nil {
			res.Skipped++
			continue
		}
		externalID := ie.ExternalID
		e := &Entry{PatientID: patientID, Source: source, ExternalID: &externalID}
		in.apply(e)
		err := s.repo.Upsert(ctx, tenantID, e)
		if errors.Is(err, db.ErrNotFound) {
			res.Skipped++
			continue
		}
		if err != nil {
			return res, err
		}
		res.Upserted++
	}
	return res, nil
}

type ImportEntry struct {
	ExternalID string
	Input      Input
}

type ImportResult struct {
	Upserted int `json:"upserted"`
	Skipped  int `json:"skipped"`
}

package gpconnect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careadmin/careadmin/internal/domain/medicalhistory"
	"github.com/careadmin/careadmin/internal/domain/patient"
	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/queue"
)

const entityType = "gp_connect_settings"

type Enqueuer interface {
	Enqueue(ctx context.Context, queue, jobType string, data interface{}, priority int) (*queue.Job, error)
}

type PatientLookup interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*patient.Patient, error)
}

type HistoryImporter interface {
	Import(ctx context.Context, tenantID, patientID uuid.UUID, source string, entries []medicalhistory.ImportEntry) (medicalhistory.ImportResult, error)
}

type Service struct {
	repo     Repository
	patients PatientLookup
	history  HistoryImporter
	client   RecordClient
	jobs     Enqueuer
	activity activity.Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, patients PatientLookup, history HistoryImporter, client RecordClient, jobs Enqueuer, rec activity.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		history:  history,
		client:   client,
		jobs:     jobs,
		activity: rec,
		logger:   logger.With().Str("integration", "gp-connect").Logger(),
		now:      time.Now,
	}
}

func (s *Service) settings(ctx context.Context, tenantID uuid.UUID) (*Settings, error) {
	st, err := s.repo.Get(ctx, tenantID)
	if errors.Is(err, db.ErrNotFound) {
		return &Settings{TenantID: tenantID}, nil
	}
	return st, err
}

func (s *Service) GetSettings(ctx context.Context) (*Settings, error) {
	return s.settings(ctx, db.TenantFromContext(ctx))
}

func (s *Service) UpdateSettings(ctx context.Context, in SettingsInput) (*Settings, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	tenantID := db.TenantFromContext(ctx)
	st, err := s.settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	in.apply(st)
	if st.Enabled {
		verr := &apperr.ValidationError{Message: "validation failed"}
		if st.ODSCode == nil {
			verr.Add("ods_code", "is required when enabled")
		}
		if st.ASID == nil {
			verr.Add("asid", "is required when enabled")
		}
		if err := verr.OrNil(); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Save(ctx, tenantID, st); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionUpdate,
		EntityType: entityType,
		EntityID:   &st.ID,
		Details:    map[string]interface{}{"enabled": st.Enabled},
	})
	return st, nil
}

// RequestSync queues a structured record pull for the patient.
func (s *Service) RequestSync(ctx context.Context, patientID uuid.UUID) (*queue.Job, error) {
	tenantID := db.TenantFromContext(ctx)
	st, err := s.settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !st.Enabled {
		return nil, apperr.Conflict("gp connect is not enabled")
	}
	p, err := s.patients.GetByID(ctx, tenantID, patientID)
	if err != nil {
		return nil, err
	}
	if p.NHSNumber == nil || *p.NHSNumber == "" {
		return nil, apperr.Invalid("nhs_number", "patient has no NHS number")
	}
	job, err := s.jobs.Enqueue(ctx, Queue, JobSync, syncPayload{TenantID: tenantID, PatientID: patientID}, 0)
	if err != nil {
		return nil, fmt.Errorf("enqueue gp connect sync: %w", err)
	}
	return job, nil
}

// HandleSync is the JobSync handler. Problems, allergies and immunisations
// from the practice are upserted into the patient's medical history keyed
// by their GP record id, so repeated syncs do not duplicate entries.
func (s *Service) HandleSync(ctx context.Context, job *queue.Job) error {
	var p syncPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	ctx = db.WithTenant(ctx, p.TenantID)
	log := s.logger.With().
		Str("tenant_id", p.TenantID.String()).
		Str("patient_id", p.PatientID.String()).
		Logger()

	st, err := s.settings(ctx, p.TenantID)
	if err != nil {
		return err
	}
	if !st.Enabled {
		log.Warn().Msg("gp connect disabled before sync ran")
		return nil
	}
	pat, err := s.patients.GetByID(ctx, p.TenantID, p.PatientID)
	if errors.Is(err, db.ErrNotFound) {
		log.Warn().Msg("patient removed before sync ran")
		return nil
	}
	if err != nil {
		return err
	}
	if pat.NHSNumber == nil {
		return fmt.Errorf("patient %s has no NHS number", p.PatientID)
	}

	entries, err := s.client.StructuredRecord(ctx, st, *pat.NHSNumber)
	if err != nil {
		return err
	}
	res, err := s.history.Import(ctx, p.TenantID, p.PatientID, Source, entries)
	if err != nil {
		return err
	}
	if err := s.repo.MarkSynced(ctx, p.TenantID, s.now()); err != nil {
		return err
	}

	log.Info().Int("upserted", res.Upserted).Int("skipped", res.Skipped).Msg("gp connect sync complete")
	s.activity.Record(ctx, activity.Entry{
		TenantID:   p.TenantID,
		Action:     activity.ActionSync,
		EntityType: "patient",
		EntityID:   &p.PatientID,
		Details: map[string]interface{}{
			"source":   Source,
			"upserted": res.Upserted,
			"skipped":  res.Skipped,
		},
	})
	return nil
}

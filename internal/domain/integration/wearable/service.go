package wearable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/queue"
)

const entityType = "wearable_device"

// Enqueuer is the part of the job queue the service needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue, jobType string, data interface{}, priority int) (*queue.Job, error)
}

type Service struct {
	repo     Repository
	provider Provider
	jobs     Enqueuer
	activity activity.Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, provider Provider, jobs Enqueuer, rec activity.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		jobs:     jobs,
		activity: rec,
		logger:   logger.With().Str("integration", "wearable").Logger(),
		now:      time.Now,
	}
}

func (s *Service) CreateDevice(ctx context.Context, patientID uuid.UUID, in DeviceInput) (*Device, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	d := &Device{PatientID: patientID}
	in.apply(d)
	if err := s.repo.CreateDevice(ctx, db.TenantFromContext(ctx), d); err != nil {
		switch {
		case db.IsUniqueViolation(err):
			return nil, apperr.Conflict("%s device %s is already registered", d.Provider, d.DeviceIdentifier)
		case db.IsForeignKeyViolation(err):
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionCreate,
		EntityType: entityType,
		EntityID:   &d.ID,
		Details:    map[string]interface{}{"patient_id": patientID.String(), "provider": d.Provider},
	})
	return d, nil
}

func (s *Service) GetDevice(ctx context.Context, id uuid.UUID) (*Device, error) {
	return s.repo.GetDevice(ctx, db.TenantFromContext(ctx), id)
}

func (s *Service) ListDevices(ctx context.Context, patientID uuid.UUID) ([]*Device, error) {
	return s.repo.ListDevices(ctx, db.TenantFromContext(ctx), patientID)
}

func (s *Service) UpdateDevice(ctx context.Context, id uuid.UUID, in DeviceInput) (*Device, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	tenantID := db.TenantFromContext(ctx)
	d, err := s.repo.GetDevice(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	in.apply(d)
	if err := s.repo.UpdateDevice(ctx, tenantID, d); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict("%s device %s is already registered", d.Provider, d.DeviceIdentifier)
		}
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionUpdate,
		EntityType: entityType,
		EntityID:   &d.ID,
	})
	return d, nil
}

func (s *Service) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteDevice(ctx, db.TenantFromContext(ctx), id); err != nil {
		return err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionDelete,
		EntityType: entityType,
		EntityID:   &id,
	})
	return nil
}

func (s *Service) ListReadings(ctx context.Context, deviceID uuid.UUID, f ReadingFilter, limit, offset int) ([]*Reading, int, error) {
	if f.Type != "" && !readingTypes[f.Type] {
		return nil, 0, apperr.Invalid("type", "is not a known reading type")
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, 0, apperr.Invalid("from", "must be before to")
	}
	tenantID := db.TenantFromContext(ctx)
	if _, err := s.repo.GetDevice(ctx, tenantID, deviceID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListReadings(ctx, tenantID, deviceID, f, limit, offset)
}

// RequestSync queues a pull of the device's readings.
func (s *Service) RequestSync(ctx context.Context, deviceID uuid.UUID) (*queue.Job, error) {
	tenantID := db.TenantFromContext(ctx)
	d, err := s.repo.GetDevice(ctx, tenantID, deviceID)
	if err != nil {
		return nil, err
	}
	if d.Status == StatusDisconnected {
		return nil, apperr.Conflict("device %s is disconnected", d.ID)
	}
	job, err := s.jobs.Enqueue(ctx, Queue, JobSync, syncPayload{TenantID: tenantID, DeviceID: d.ID}, 0)
	if err != nil {
		return nil, fmt.Errorf("enqueue wearable sync: %w", err)
	}
	return job, nil
}

// HandleSync is the JobSync handler. It pulls readings recorded since the
// device's last sync, stores the new ones and advances the cursor. A device
// whose credentials were rejected is put into the error status.
func (s *Service) HandleSync(ctx context.Context, job *queue.Job) error {
	var p syncPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	ctx = db.WithTenant(ctx, p.TenantID)

	d, err := s.repo.GetDevice(ctx, p.TenantID, p.DeviceID)
	if errors.Is(err, db.ErrNotFound) {
		s.logger.Warn().Str("device_id", p.DeviceID.String()).Msg("device removed before sync")
		return nil
	}
	if err != nil {
		return err
	}
	if d.Status == StatusDisconnected {
		return nil
	}

	started := s.now()
	since := started.Add(-backfill)
	if d.LastSyncedAt != nil {
		since = *d.LastSyncedAt
	}

	readings, err := s.provider.FetchReadings(ctx, d, since)
	if err != nil {
		if errors.Is(err, ErrDeviceUnauthorized) {
			if merr := s.repo.MarkSynced(ctx, p.TenantID, d.ID, StatusError, nil); merr != nil {
				s.logger.Error().Err(merr).Str("device_id", d.ID.String()).Msg("mark device error")
			}
		}
		return err
	}

	res, err := s.store(ctx, p.TenantID, d, readings)
	if err != nil {
		return err
	}
	if err := s.repo.MarkSynced(ctx, p.TenantID, d.ID, StatusActive, &started); err != nil {
		return err
	}

	s.logger.Info().
		Str("tenant_id", p.TenantID.String()).
		Str("device_id", d.ID.String()).
		Int("received", res.Received).
		Int("stored", res.Stored).
		Msg("wearable sync complete")
	s.activity.Record(ctx, activity.Entry{
		TenantID:   p.TenantID,
		Action:     activity.ActionSync,
		EntityType: entityType,
		EntityID:   &d.ID,
		Details: map[string]interface{}{
			"received": res.Received,
			"stored":   res.Stored,
			"skipped":  res.Skipped,
		},
	})
	return nil
}

// Ingest stores readings pushed for a device outside the pull cycle.
func (s *Service) Ingest(ctx context.Context, tenantID, deviceID uuid.UUID, readings []ReadingInput) (SyncResult, error) {
	ctx = db.WithTenant(ctx, tenantID)
	d, err := s.repo.GetDevice(ctx, tenantID, deviceID)
	if err != nil {
		return SyncResult{}, err
	}
	if d.Status == StatusDisconnected {
		return SyncResult{}, apperr.Conflict("device %s is disconnected", d.ID)
	}
	return s.store(ctx, tenantID, d, readings)
}

func (s *Service) store(ctx context.Context, tenantID uuid.UUID, d *Device, readings []ReadingInput) (SyncResult, error) {
	res := SyncResult{Received: len(readings)}
	for _, in := range readings {
		if err := apperr.Validate(&in); err != nil {
			res.Skipped++
			continue
		}
		inserted, err := s.repo.InsertReading(ctx, tenantID, &Reading{
			DeviceID:    d.ID,
			PatientID:   d.PatientID,
			ReadingType: in.Type,
			Value:       in.Value,
			Unit:        in.Unit,
			RecordedAt:  in.RecordedAt.UTC(),
		})
		if err != nil {
			return res, err
		}
		if inserted {
			res.Stored++
		} else {
			res.Skipped++
		}
	}
	return res, nil
}

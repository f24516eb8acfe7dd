package patient

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/cache"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/kv"
	"github.com/careadmin/careadmin/pkg/civil"
)

const (
	entityType = "patient"
	// MaxExportRows caps a single spreadsheet export.
	MaxExportRows = 5000
)

type Service struct {
	repo     Repository
	cache    *cache.Cache
	ttl      time.Duration
	activity activity.Recorder
	today    func() civil.Date
}

// NewService wires the patient service. c may be nil to disable caching.
func NewService(repo Repository, c *cache.Cache, ttl time.Duration, rec activity.Recorder) *Service {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Service{repo: repo, cache: c, ttl: ttl, activity: rec, today: civil.Today}
}

func (s *Service) validate(in *Input) error {
	if err := apperr.Validate(in); err != nil {
		return err
	}
	if in.DateOfBirth.After(s.today()) {
		return apperr.Invalid("date_of_birth", "must not be in the future")
	}
	return nil
}

func (s *Service) cacheKey(ctx context.Context, tenantID, id uuid.UUID) string {
	return s.cache.Key(ctx, kv.PatientNamespace(tenantID), id.String())
}

func (s *Service) invalidate(ctx context.Context, tenantID, id uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, s.cacheKey(ctx, tenantID, id))
	}
}

func (s *Service) Create(ctx context.Context, in Input) (*Patient, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	tenantID := db.TenantFromContext(ctx)
	p := &Patient{}
	in.apply(p)
	if err := s.repo.Create(ctx, tenantID, p); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict("a patient with this NHS number already exists")
		}
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionCreate,
		EntityType: entityType,
		EntityID:   &p.ID,
		Details:    map[string]interface{}{"name": p.FullName()},
	})
	return p, nil
}

// Get reads through the patient cache.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	tenantID := db.TenantFromContext(ctx)
	fetch := func(ctx context.Context) (*Patient, error) {
		return s.repo.GetByID(ctx, tenantID, id)
	}
	if s.cache == nil {
		return fetch(ctx)
	}
	return cache.GetOrLoad(ctx, s.cache, s.cacheKey(ctx, tenantID, id), s.ttl, fetch)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (*Patient, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	tenantID := db.TenantFromContext(ctx)
	p, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	in.apply(p)
	if err := s.repo.Update(ctx, tenantID, p); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict("a patient with this NHS number already exists")
		}
		return nil, err
	}
	s.invalidate(ctx, tenantID, id)
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionUpdate,
		EntityType: entityType,
		EntityID:   &p.ID,
	})
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	tenantID := db.TenantFromContext(ctx)
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.invalidate(ctx, tenantID, id)
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionDelete,
		EntityType: entityType,
		EntityID:   &id,
	})
	return nil
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	if f.Status != "" && f.Status != StatusActive && f.Status != StatusInactive && f.Status != StatusDeceased {
		return nil, 0, apperr.Invalid("status", "must be one of: active, inactive, deceased")
	}
	return s.repo.List(ctx, db.TenantFromContext(ctx), f, limit, offset)
}

// Export returns up to MaxExportRows patients matching f and records the
// export in the activity log.
func (s *Service) Export(ctx context.Context, f ListFilter) ([]*Patient, error) {
	items, total, err := s.List(ctx, f, MaxExportRows, 0)
	if err != nil {
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionExport,
		EntityType: entityType,
		Details: map[string]interface{}{
			"rows":      len(items),
			"total":     total,
			"query":     f.Query,
			"status":    f.Status,
			"truncated": total > len(items),
		},
	})
	return items, nil
}

// InvalidateTenant drops every cached patient of the tenant.
func (s *Service) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) {
	if s.cache != nil {
		s.cache.InvalidateNamespace(ctx, kv.PatientNamespace(tenantID))
	}
}

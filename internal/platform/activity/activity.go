// Package activity records who did what to which entity within a tenant.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionView   = "view"
	ActionLogin  = "login"
	ActionExport = "export"
	ActionSync   = "sync"
)

var validActions = map[string]bool{
	ActionCreate: true, ActionUpdate: true, ActionDelete: true, ActionView: true,
	ActionLogin: true, ActionExport: true, ActionSync: true,
}

type Entry struct {
	ID         uuid.UUID              `json:"id"`
	TenantID   uuid.UUID              `json:"tenant_id"`
	UserID     string                 `json:"user_id"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   *uuid.UUID             `json:"entity_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Recorder is what domain services depend on. Record never fails the
// caller's operation.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

type actionTracker interface {
	TrackAction(ctx context.Context, tenantID uuid.UUID, action string)
}

type errorCapturer interface {
	CaptureError(ctx context.Context, err error, tags map[string]string)
}

type Service struct {
	repo     Repository
	tracker  actionTracker
	reporter errorCapturer
	logger   zerolog.Logger
}

// NewService wires the recorder. tracker and reporter may be nil.
func NewService(repo Repository, tracker actionTracker, reporter errorCapturer, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		tracker:  tracker,
		reporter: reporter,
		logger:   logger.With().Str("component", "activity").Logger(),
	}
}

// Record fills tenant, user and client IP from ctx when unset.
func (s *Service) Record(ctx context.Context, e Entry) {
	if e.TenantID == uuid.Nil {
		e.TenantID = db.TenantFromContext(ctx)
	}
	if e.UserID == "" {
		e.UserID = auth.UserIDFromContext(ctx)
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIPFromContext(ctx)
	}
	if !validActions[e.Action] {
		s.logger.Warn().Str("action", e.Action).Str("entity_type", e.EntityType).Msg("dropping activity with unknown action")
		return
	}

	if err := s.repo.Insert(ctx, &e); err != nil {
		s.logger.Error().Err(err).
			Str("tenant_id", e.TenantID.String()).
			Str("action", e.Action).
			Str("entity_type", e.EntityType).
			Msg("record activity")
		if s.reporter != nil {
			s.reporter.CaptureError(ctx, err, map[string]string{
				"component":   "activity",
				"entity_type": e.EntityType,
			})
		}
		return
	}
	if s.tracker != nil {
		s.tracker.TrackAction(ctx, e.TenantID, e.Action)
	}
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Entry, int, error) {
	return s.repo.List(ctx, db.TenantFromContext(ctx), f, limit, offset)
}

type clientIPKey struct{}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// ClientIP copies echo's RealIP onto the request context for Record.
func ClientIP() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(WithClientIP(c.Request().Context(), c.RealIP())))
			return next(c)
		}
	}
}

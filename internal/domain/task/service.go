package task

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/notify"
)

const entityType = "task"

// Notifier delivers in-app notifications. *notify.Service satisfies it.
type Notifier interface {
	Create(ctx context.Context, n *notify.Notification) error
}

type Service struct {
	repo     Repository
	activity activity.Recorder
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, rec activity.Recorder, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		activity: rec,
		notifier: notifier,
		logger:   logger.With().Str("component", "task").Logger(),
		now:      time.Now,
	}
}

func (s *Service) Create(ctx context.Context, in Input) (*Task, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	t := &Task{}
	in.apply(t)
	t.setStatus(t.Status, s.now().UTC())
	if err := s.repo.Create(ctx, db.TenantFromContext(ctx), t); err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, apperr.Invalid("patient_id", "does not reference a patient in this tenant")
		}
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionCreate,
		EntityType: entityType,
		EntityID:   &t.ID,
		Details:    map[string]interface{}{"title": t.Title, "priority": t.Priority},
	})
	s.notifyAssignee(ctx, t, "")
	return t, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	return s.repo.GetByID(ctx, db.TenantFromContext(ctx), id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (*Task, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	tenantID := db.TenantFromContext(ctx)
	t, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	previous := deref(t.AssignedTo)
	in.apply(t)
	t.setStatus(t.Status, s.now().UTC())
	if err := s.repo.Update(ctx, tenantID, t); err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, apperr.Invalid("patient_id", "does not reference a patient in this tenant")
		}
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionUpdate,
		EntityType: entityType,
		EntityID:   &t.ID,
	})
	s.notifyAssignee(ctx, t, previous)
	return t, nil
}

// SetStatus changes only the status; completed_at is stamped on done and
// cleared when the task is reopened.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, in StatusInput) (*Task, error) {
	if err := apperr.Validate(&in); err != nil {
		return nil, err
	}
	tenantID := db.TenantFromContext(ctx)
	t, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	from := t.Status
	t.setStatus(in.Status, s.now().UTC())
	if err := s.repo.Update(ctx, tenantID, t); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionUpdate,
		EntityType: entityType,
		EntityID:   &t.ID,
		Details:    map[string]interface{}{"status_from": from, "status_to": t.Status},
	})
	return t, nil
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

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Task, int, error) {
	ve := &apperr.ValidationError{Message: "validation failed"}
	if f.Status != "" && !oneOf(f.Status, StatusTodo, StatusInProgress, StatusBlocked, StatusDone, StatusCancelled) {
		ve.Add("status", "is not a known task status")
	}
	if f.Priority != "" && !oneOf(f.Priority, "low", "medium", "high", "urgent") {
		ve.Add("priority", "is not a known task priority")
	}
	if err := ve.OrNil(); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, db.TenantFromContext(ctx), f, limit, offset)
}

// notifyAssignee tells a newly assigned user about t. Self-assignment and
// unchanged assignees are skipped; delivery failures never fail the write.
func (s *Service) notifyAssignee(ctx context.Context, t *Task, previous string) {
	assignee := deref(t.AssignedTo)
	if s.notifier == nil || assignee == "" || assignee == previous || assignee == auth.UserIDFromContext(ctx) {
		return
	}
	err := s.notifier.Create(ctx, &notify.Notification{
		TenantID: t.TenantID,
		UserID:   assignee,
		Type:     "task.assigned",
		Title:    "New task assigned",
		Message:  t.Title,
		Link:     "/tasks/" + t.ID.String(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("task_id", t.ID.String()).Str("assignee", assignee).Msg("notify task assignee")
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

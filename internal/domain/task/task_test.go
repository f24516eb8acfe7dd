package task

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/notify"
	"github.com/careadmin/careadmin/internal/platform/response"
)

type mockRepo struct {
	store map[uuid.UUID]*Task
}

func (m *mockRepo) Create(_ context.Context, tenantID uuid.UUID, t *Task) error {
	t.ID = uuid.New()
	t.TenantID = tenantID
	m.store[t.ID] = t
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (*Task, error) {
	t, ok := m.store[id]
	if !ok || t.TenantID != tenantID {
		return nil, db.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, _ uuid.UUID, t *Task) error {
	m.store[t.ID] = t
	return nil
}

func (m *mockRepo) Delete(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	if _, ok := m.store[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, tenantID uuid.UUID, f ListFilter, _, _ int) ([]*Task, int, error) {
	var r []*Task
	for _, t := range m.store {
		if t.TenantID != tenantID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.AssignedTo != "" && deref(t.AssignedTo) != f.AssignedTo {
			continue
		}
		r = append(r, t)
	}
	return r, len(r), nil
}

type mockRecorder struct{ entries []activity.Entry }

func (m *mockRecorder) Record(_ context.Context, e activity.Entry) { m.entries = append(m.entries, e) }

type failingNotifier struct{ calls int }

func (f *failingNotifier) Create(context.Context, *notify.Notification) error {
	f.calls++
	return errors.New("redis unavailable")
}

var testTenant = uuid.MustParse("0a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d")

func tenantCtx() context.Context {
	ctx := db.WithTenant(context.Background(), testTenant)
	return auth.WithIdentity(ctx, "user-coordinator", "coordinator@example.com", []string{auth.RoleStaff})
}

func newTestService(t *testing.T) (*Service, *notify.Service, *mockRecorder) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	inbox := notify.NewService(rdb, zerolog.Nop())
	rec := &mockRecorder{}
	svc := NewService(&mockRepo{store: map[uuid.UUID]*Task{}}, rec, inbox, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) }
	return svc, inbox, rec
}

func strPtr(s string) *string { return &s }

func TestCreate_Defaults(t *testing.T) {
	svc, _, rec := newTestService(t)
	task, err := svc.Create(tenantCtx(), Input{Title: "Call GP surgery"})
	require.NoError(t, err)
	assert.Equal(t, StatusTodo, task.Status)
	assert.Equal(t, "medium", task.Priority)
	assert.Nil(t, task.CompletedAt)
	require.Len(t, rec.entries, 1)
	assert.Equal(t, activity.ActionCreate, rec.entries[0].Action)
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Create(tenantCtx(), Input{Priority: "critical", Status: "waiting"})
	ve, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "title")
	assert.Contains(t, ve.Fields, "priority")
	assert.Contains(t, ve.Fields, "status")
}

func TestCreate_NotifiesAssignee(t *testing.T) {
	svc, inbox, _ := newTestService(t)
	task, err := svc.Create(tenantCtx(), Input{Title: "Review care plan", AssignedTo: strPtr("user-nurse")})
	require.NoError(t, err)

	got := inbox.ListForUser(context.Background(), testTenant, "user-nurse", 10)
	require.Len(t, got, 1)
	assert.Equal(t, "task.assigned", got[0].Type)
	assert.Equal(t, "Review care plan", got[0].Message)
	assert.Equal(t, "/tasks/"+task.ID.String(), got[0].Link)
}

func TestCreate_SelfAssignmentIsNotNotified(t *testing.T) {
	svc, inbox, _ := newTestService(t)
	_, err := svc.Create(tenantCtx(), Input{Title: "Order supplies", AssignedTo: strPtr("user-coordinator")})
	require.NoError(t, err)
	assert.Empty(t, inbox.ListForUser(context.Background(), testTenant, "user-coordinator", 10))
}

func TestUpdate_NotifiesOnlyOnReassignment(t *testing.T) {
	svc, inbox, _ := newTestService(t)
	in := Input{Title: "Chase blood results", AssignedTo: strPtr("user-nurse")}
	task, err := svc.Create(tenantCtx(), in)
	require.NoError(t, err)

	in.Priority = "high"
	_, err = svc.Update(tenantCtx(), task.ID, in)
	require.NoError(t, err)
	assert.Len(t, inbox.ListForUser(context.Background(), testTenant, "user-nurse", 10), 1)

	in.AssignedTo = strPtr("user-doctor")
	_, err = svc.Update(tenantCtx(), task.ID, in)
	require.NoError(t, err)
	assert.Len(t, inbox.ListForUser(context.Background(), testTenant, "user-doctor", 10), 1)
}

func TestCreate_NotificationFailureDoesNotFailWrite(t *testing.T) {
	notifier := &failingNotifier{}
	svc := NewService(&mockRepo{store: map[uuid.UUID]*Task{}}, &mockRecorder{}, notifier, zerolog.Nop())
	_, err := svc.Create(tenantCtx(), Input{Title: "Book interpreter", AssignedTo: strPtr("user-nurse")})
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.calls)
}

func TestSetStatus_CompletedAt(t *testing.T) {
	svc, _, rec := newTestService(t)
	task, err := svc.Create(tenantCtx(), Input{Title: "Update allergy list"})
	require.NoError(t, err)

	done, err := svc.SetStatus(tenantCtx(), task.ID, StatusInput{Status: StatusDone})
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, svc.now(), *done.CompletedAt)
	last := rec.entries[len(rec.entries)-1]
	assert.Equal(t, "todo", last.Details["status_from"])
	assert.Equal(t, "done", last.Details["status_to"])

	reopened, err := svc.SetStatus(tenantCtx(), task.ID, StatusInput{Status: StatusInProgress})
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)
}

func TestSetStatus_OtherTenant(t *testing.T) {
	svc, _, _ := newTestService(t)
	task, err := svc.Create(tenantCtx(), Input{Title: "Fax referral"})
	require.NoError(t, err)

	other := db.WithTenant(context.Background(), uuid.New())
	_, err = svc.SetStatus(other, task.ID, StatusInput{Status: StatusDone})
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestList_RejectsUnknownFilters(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, _, err := svc.List(tenantCtx(), ListFilter{Status: "archived", Priority: "p1"}, 20, 0)
	ve, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Len(t, ve.Fields, 2)
}

func TestHandler_SetStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	task, err := svc.Create(tenantCtx(), Input{Title: "Send discharge summary"})
	require.NoError(t, err)

	e := echo.New()
	e.HTTPErrorHandler = response.ErrorHandler(zerolog.Nop(), nil)
	h := NewHandler(svc)

	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"done"}`)).WithContext(tenantCtx())
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(task.ID.String())
	require.NoError(t, h.SetStatus(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"completed_at"`)
}

func TestHandler_ListBadPatientID(t *testing.T) {
	svc, _, _ := newTestService(t)
	e := echo.New()
	e.HTTPErrorHandler = response.ErrorHandler(zerolog.Nop(), nil)
	h := NewHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/?patient_id=nope", nil).WithContext(tenantCtx())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	e.HTTPErrorHandler(h.List(c), c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

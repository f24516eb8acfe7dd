package errreport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *captureTransport) Configure(sentry.ClientOptions) {}

func (t *captureTransport) SendEvent(e *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

func (t *captureTransport) Flush(time.Duration) bool { return true }

func (t *captureTransport) FlushWithContext(context.Context) bool { return true }

func (t *captureTransport) Close() {}

func (t *captureTransport) all() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

func newTestSentry(t *testing.T) (*SentryReporter, *captureTransport) {
	t.Helper()
	tr := &captureTransport{}
	r, err := NewSentryReporter(sentry.ClientOptions{
		Dsn:       "https://public@sentry.example.com/1",
		Transport: tr,
	})
	require.NoError(t, err)
	return r, tr
}

func TestSentryReporter_CaptureError(t *testing.T) {
	r, tr := newTestSentry(t)

	r.CaptureError(context.Background(), errors.New("boom"), map[string]string{"tenant_id": "t1"})

	events := tr.all()
	require.Len(t, events, 1)
	assert.Equal(t, "t1", events[0].Tags["tenant_id"])
	require.NotEmpty(t, events[0].Exception)
	assert.Equal(t, "boom", events[0].Exception[0].Value)
}

func TestSentryReporter_NilErrorIgnored(t *testing.T) {
	r, tr := newTestSentry(t)
	r.CaptureError(context.Background(), nil, nil)
	assert.Empty(t, tr.all())
}

func TestNew_WithoutDSNLogs(t *testing.T) {
	r, err := New("", "test", "", zerolog.Nop())
	require.NoError(t, err)
	_, ok := r.(*LogReporter)
	assert.True(t, ok)
	assert.True(t, r.Flush(time.Second))
}

func TestHandler_ForwardsClientReport(t *testing.T) {
	r, tr := newTestSentry(t)
	e := echo.New()
	body := `{"message":"TypeError: x is undefined","stack":"at render","url":"/patients","component":"PatientList"}`
	req := httptest.NewRequest(http.MethodPost, "/api/errors", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, Handler(r)(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	events := tr.all()
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Message, "TypeError: x is undefined")
	assert.Equal(t, "PatientList", events[0].Tags["component"])
	assert.Equal(t, "client", events[0].Tags["source"])
}

func TestHandler_RequiresMessage(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/errors", strings.NewReader(`{"stack":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := Handler(NewLogReporter(zerolog.Nop()))(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

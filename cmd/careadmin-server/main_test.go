package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careadmin/careadmin/internal/config"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/errreport"
	"github.com/careadmin/careadmin/internal/platform/queue"
)

func testApp(t *testing.T) *app {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		Env:               "production",
		AuthSigningKey:    "test-secret",
		RateLimit:         100,
		RateWindow:        time.Minute,
		CacheTTL:          time.Hour,
		QueueNames:        []string{"default", "integrations"},
		QueueLease:        5 * time.Minute,
		WorkerConcurrency: 2,
		WearableAPIURL:    "http://wearables.test",
	}
	logger := zerolog.Nop()
	return buildApp(cfg, logger, nil, rdb, errreport.NewLogReporter(logger))
}

func TestNewEcho_PublicRoutes(t *testing.T) {
	e, err := newEcho(testApp(t))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewEcho_TenantRoutesRequireToken(t *testing.T) {
	e, err := newEcho(testApp(t))
	require.NoError(t, err)

	for _, path := range []string{"/api/patients", "/api/admin/tenants/6f1c8a57-2d0e-4b8e-9a51-3c1f0c6f9a11"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestNewEcho_RegistersEveryModule(t *testing.T) {
	e, err := newEcho(testApp(t))
	require.NoError(t, err)

	routes := map[string]bool{}
	for _, r := range e.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health/db",
		"POST /api/errors",
		"GET /api/integrations/office365/callback",
		"POST /api/tenants/invitations/accept",
		"POST /api/admin/tenants",
		"GET /api/patients",
		"GET /api/patients/export",
		"GET /api/appointments",
		"GET /api/notifications",
		"GET /api/features",
		"GET /api/activity-logs",
		"POST /api/wearables/:deviceId/sync",
		"POST /api/integrations/gp-connect/sync/:patientId",
		"GET /api/integrations/office365/connect",
	} {
		assert.True(t, routes[want], "missing route %s", want)
	}
}

func TestNewLogger_Level(t *testing.T) {
	logger := newLogger(&config.Config{Env: "production", LogLevel: "warn"})
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	logger = newLogger(&config.Config{Env: "production", LogLevel: "loud"})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestIsLongRunning(t *testing.T) {
	assert.True(t, isLongRunning("/api/patients/export"))
	assert.False(t, isLongRunning("/api/patients/:id"))
}

func TestPrintQueueStats(t *testing.T) {
	var buf bytes.Buffer
	printQueueStats(&buf, []queue.Stats{{Queue: "integrations", Pending: 3, Processing: 1, Failed: 2}})
	assert.Contains(t, buf.String(), "QUEUE")
	assert.Regexp(t, `integrations\s+3\s+1\s+2`, buf.String())
}

func TestPrintMigrationStatus(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	cmd := migrateCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	printMigrationStatus(cmd, []db.MigrationStatus{
		{Version: 1, Name: "001_core.sql", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "002_integrations.sql"},
	})
	assert.Regexp(t, `1\s+001_core.sql\s+applied\s+2026-03-01 09:30:00`, buf.String())
	assert.Regexp(t, `2\s+002_integrations.sql\s+pending`, buf.String())
}

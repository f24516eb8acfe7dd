package office365

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jarcoal/httpmock"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/kv"
	"github.com/careadmin/careadmin/internal/platform/response"
)

const tokenURL = "https://login.example.com/common/oauth2/v2.0/token"

type mockRepo struct {
	store map[uuid.UUID]*Settings
	saved []Token
}

func (m *mockRepo) Get(_ context.Context, tenantID uuid.UUID) (*Settings, error) {
	st, ok := m.store[tenantID]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *mockRepo) SaveSettings(_ context.Context, tenantID uuid.UUID, s *Settings) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.TenantID = tenantID
	m.store[tenantID] = s
	return nil
}

func (m *mockRepo) SaveToken(_ context.Context, tenantID uuid.UUID, tok Token) error {
	st, ok := m.store[tenantID]
	if !ok {
		st = &Settings{ID: uuid.New(), TenantID: tenantID}
		m.store[tenantID] = st
	}
	access, refresh, expiry := tok.AccessToken, tok.RefreshToken, tok.Expiry
	st.AccessToken, st.RefreshToken, st.TokenExpiresAt = &access, &refresh, &expiry
	st.Connected = true
	m.saved = append(m.saved, tok)
	return nil
}

func (m *mockRepo) ClearToken(_ context.Context, tenantID uuid.UUID) error {
	st, ok := m.store[tenantID]
	if !ok {
		return db.ErrNotFound
	}
	st.AccessToken, st.RefreshToken, st.TokenExpiresAt = nil, nil, nil
	st.Connected = false
	return nil
}

type mockRecorder struct{ entries []activity.Entry }

func (m *mockRecorder) Record(_ context.Context, e activity.Entry) { m.entries = append(m.entries, e) }

var testTenant = uuid.MustParse("5a6b7c8d-9e0f-4a1b-8c2d-3e4f5a6b7c8d")

func tenantCtx() context.Context {
	ctx := db.WithTenant(context.Background(), testTenant)
	return auth.WithIdentity(ctx, "admin-1", "admin@example.com", []string{auth.RoleAdmin})
}

type fixture struct {
	svc       *Service
	repo      *mockRepo
	rec       *mockRecorder
	mr        *miniredis.Miniredis
	transport *httpmock.MockTransport
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	repo := &mockRepo{store: map[uuid.UUID]*Settings{}}
	rec := &mockRecorder{}
	svc := NewService(repo, rdb, OAuthConfig{
		ClientID:     "app-client",
		ClientSecret: "app-secret",
		RedirectURL:  "https://admin.example.com/api/integrations/office365/callback",
	}, rec, zerolog.Nop())

	transport := httpmock.NewMockTransport()
	svc.httpClient = &http.Client{Transport: transport}
	svc.endpoint = func(directory string) oauth2.Endpoint {
		return oauth2.Endpoint{
			AuthURL:   "https://login.example.com/" + directory + "/oauth2/v2.0/authorize",
			TokenURL:  "https://login.example.com/" + directory + "/oauth2/v2.0/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}
	}
	svc.newState = func() (string, error) { return "state-123", nil }

	return &fixture{svc: svc, repo: repo, rec: rec, mr: mr, transport: transport}
}

func (f *fixture) enable(t *testing.T) {
	t.Helper()
	_, err := f.svc.UpdateSettings(tenantCtx(), SettingsInput{Enabled: true})
	require.NoError(t, err)
}

func tokenResponder(access, refresh string) httpmock.Responder {
	return httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func TestGetSettings_DefaultsWhenMissing(t *testing.T) {
	f := newFixture(t)
	st, err := f.svc.GetSettings(tenantCtx())
	require.NoError(t, err)
	assert.False(t, st.Enabled)
	assert.True(t, st.SyncCalendar)
	assert.False(t, st.Connected)
}

func TestUpdateSettings_RecordsActivity(t *testing.T) {
	f := newFixture(t)
	directory := "contoso.onmicrosoft.com"
	st, err := f.svc.UpdateSettings(tenantCtx(), SettingsInput{Enabled: true, TenantDirectoryID: &directory})
	require.NoError(t, err)
	assert.Equal(t, "contoso.onmicrosoft.com", st.directory())
	require.Len(t, f.rec.entries, 1)
	assert.Equal(t, activity.ActionUpdate, f.rec.entries[0].Action)
}

func TestConnectURL_RequiresEnabled(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ConnectURL(tenantCtx())
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestConnectURL_StoresState(t *testing.T) {
	f := newFixture(t)
	f.enable(t)

	raw, err := f.svc.ConnectURL(tenantCtx())
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/common/oauth2/v2.0/authorize", u.Path)
	assert.Equal(t, "app-client", u.Query().Get("client_id"))
	assert.Equal(t, "state-123", u.Query().Get("state"))
	assert.Equal(t, "offline", u.Query().Get("access_type"))
	assert.Contains(t, u.Query().Get("scope"), "offline_access")

	key := kv.OAuthStateKey("state-123")
	assert.True(t, f.mr.Exists(key))
	assert.Equal(t, StateTTL, f.mr.TTL(key))
}

func TestConnectURL_TenantClientOverride(t *testing.T) {
	f := newFixture(t)
	client := "tenant-client"
	_, err := f.svc.UpdateSettings(tenantCtx(), SettingsInput{Enabled: true, ClientID: &client})
	require.NoError(t, err)

	raw, err := f.svc.ConnectURL(tenantCtx())
	require.NoError(t, err)
	u, _ := url.Parse(raw)
	assert.Equal(t, "tenant-client", u.Query().Get("client_id"))
}

func TestCallback_ExchangesCodeOnce(t *testing.T) {
	f := newFixture(t)
	f.enable(t)
	_, err := f.svc.ConnectURL(tenantCtx())
	require.NoError(t, err)

	f.transport.RegisterResponder(http.MethodPost, tokenURL, tokenResponder("access-1", "refresh-1"))

	// the redirect carries no tenant or identity
	tenantID, err := f.svc.Callback(context.Background(), "state-123", "auth-code")
	require.NoError(t, err)
	assert.Equal(t, testTenant, tenantID)

	require.Len(t, f.repo.saved, 1)
	assert.Equal(t, "access-1", f.repo.saved[0].AccessToken)
	assert.Equal(t, "refresh-1", f.repo.saved[0].RefreshToken)
	assert.False(t, f.mr.Exists(kv.OAuthStateKey("state-123")))

	last := f.rec.entries[len(f.rec.entries)-1]
	assert.Equal(t, true, last.Details["connected"])

	_, err = f.svc.Callback(context.Background(), "state-123", "auth-code")
	_, isValidation := apperr.AsValidation(err)
	assert.True(t, isValidation)
	assert.Equal(t, 1, f.transport.GetTotalCallCount())
}

func TestCallback_RequiresStateAndCode(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Callback(context.Background(), "", "code")
	_, isValidation := apperr.AsValidation(err)
	assert.True(t, isValidation)
}

func TestCallback_ExchangeFailure(t *testing.T) {
	f := newFixture(t)
	f.enable(t)
	_, err := f.svc.ConnectURL(tenantCtx())
	require.NoError(t, err)

	f.transport.RegisterResponder(http.MethodPost, tokenURL,
		httpmock.NewJsonResponderOrPanic(http.StatusBadRequest, map[string]string{"error": "invalid_grant"}))

	_, err = f.svc.Callback(context.Background(), "state-123", "bad-code")
	require.Error(t, err)
	assert.Empty(t, f.repo.saved)
}

func TestToken_RefreshesExpired(t *testing.T) {
	f := newFixture(t)
	f.enable(t)
	require.NoError(t, f.repo.SaveToken(context.Background(), testTenant, Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	f.transport.RegisterResponder(http.MethodPost, tokenURL, tokenResponder("fresh", "refresh-2"))

	tok, err := f.svc.Token(tenantCtx())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	require.Len(t, f.repo.saved, 2)
	assert.Equal(t, "refresh-2", f.repo.saved[1].RefreshToken)
}

func TestToken_ValidTokenIsReused(t *testing.T) {
	f := newFixture(t)
	f.enable(t)
	require.NoError(t, f.repo.SaveToken(context.Background(), testTenant, Token{
		AccessToken:  "current",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	}))

	tok, err := f.svc.Token(tenantCtx())
	require.NoError(t, err)
	assert.Equal(t, "current", tok.AccessToken)
	assert.Equal(t, 0, f.transport.GetTotalCallCount())
	assert.Len(t, f.repo.saved, 1)
}

func TestStatus_AfterDisconnect(t *testing.T) {
	f := newFixture(t)
	f.enable(t)
	require.NoError(t, f.repo.SaveToken(context.Background(), testTenant, Token{
		AccessToken:  "current",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	}))

	st, err := f.svc.Status(tenantCtx())
	require.NoError(t, err)
	assert.True(t, st.Connected)

	require.NoError(t, f.svc.Disconnect(tenantCtx()))
	st, err = f.svc.Status(tenantCtx())
	require.NoError(t, err)
	assert.False(t, st.Connected)
}

func TestHandler_CallbackProviderError(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()
	e.HTTPErrorHandler = response.ErrorHandler(zerolog.Nop(), nil)
	h.RegisterCallback(e)

	req := httptest.NewRequest(http.MethodGet, "/api/integrations/office365/callback?error=access_denied", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Connect(t *testing.T) {
	f := newFixture(t)
	f.enable(t)
	h := NewHandler(f.svc)
	e := echo.New()
	e.HTTPErrorHandler = response.ErrorHandler(zerolog.Nop(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/integrations/office365/connect", nil)
	req = req.WithContext(tenantCtx())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Connect(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "state-123")
}

package office365

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/kv"
)

const entityType = "office365_integration"

// OAuthConfig is the app registration shared by every tenant. A tenant may
// override the client id with its own registration.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type Service struct {
	repo     Repository
	states   redis.Cmdable
	app      OAuthConfig
	activity activity.Recorder
	logger   zerolog.Logger

	endpoint   func(directory string) oauth2.Endpoint
	httpClient *http.Client
	newState   func() (string, error)
}

func NewService(repo Repository, states redis.Cmdable, app OAuthConfig, rec activity.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		states:   states,
		app:      app,
		activity: rec,
		logger:   logger.With().Str("integration", "office365").Logger(),
		endpoint: microsoft.AzureADEndpoint,
		newState: randomState,
	}
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// oauthContext routes token endpoint calls through httpClient when set.
func (s *Service) oauthContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func (s *Service) config(st *Settings) (*oauth2.Config, error) {
	clientID := s.app.ClientID
	if st.ClientID != nil {
		clientID = *st.ClientID
	}
	if clientID == "" || s.app.ClientSecret == "" || s.app.RedirectURL == "" {
		return nil, apperr.Conflict("office 365 app registration is not configured")
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: s.app.ClientSecret,
		RedirectURL:  s.app.RedirectURL,
		Scopes:       Scopes,
		Endpoint:     s.endpoint(st.directory()),
	}, nil
}

// settings returns the stored row, or the column defaults when the tenant
// never saved one.
func (s *Service) settings(ctx context.Context, tenantID uuid.UUID) (*Settings, error) {
	st, err := s.repo.Get(ctx, tenantID)
	if errors.Is(err, db.ErrNotFound) {
		return &Settings{TenantID: tenantID, SyncCalendar: true}, nil
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
	if err := s.repo.SaveSettings(ctx, tenantID, st); err != nil {
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

// ConnectURL starts the authorize flow for the current tenant. The state
// parameter maps back to the tenant and user in Redis for StateTTL.
func (s *Service) ConnectURL(ctx context.Context) (string, error) {
	tenantID := db.TenantFromContext(ctx)
	st, err := s.settings(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if !st.Enabled {
		return "", apperr.Conflict("office 365 integration is disabled")
	}
	cfg, err := s.config(st)
	if err != nil {
		return "", err
	}

	state, err := s.newState()
	if err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	pending, err := json.Marshal(pendingConnect{TenantID: tenantID, UserID: auth.UserIDFromContext(ctx)})
	if err != nil {
		return "", err
	}
	if err := s.states.Set(ctx, kv.OAuthStateKey(state), pending, StateTTL).Err(); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")), nil
}

// Callback completes the flow: the state is consumed once, the code is
// exchanged and the tokens are stored for the tenant that started it.
func (s *Service) Callback(ctx context.Context, state, code string) (uuid.UUID, error) {
	if state == "" || code == "" {
		return uuid.Nil, apperr.Invalid("state", "state and code are required")
	}
	raw, err := s.states.GetDel(ctx, kv.OAuthStateKey(state)).Bytes()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, apperr.Invalid("state", "is unknown or expired")
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("load oauth state: %w", err)
	}
	var pending pendingConnect
	if err := json.Unmarshal(raw, &pending); err != nil {
		return uuid.Nil, fmt.Errorf("decode oauth state: %w", err)
	}

	ctx = db.WithTenant(ctx, pending.TenantID)
	ctx = auth.WithIdentity(ctx, pending.UserID, "", nil)

	st, err := s.settings(ctx, pending.TenantID)
	if err != nil {
		return uuid.Nil, err
	}
	cfg, err := s.config(st)
	if err != nil {
		return uuid.Nil, err
	}
	tok, err := cfg.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return uuid.Nil, fmt.Errorf("exchange office 365 code: %w", err)
	}
	if err := s.repo.SaveToken(ctx, pending.TenantID, Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}); err != nil {
		return uuid.Nil, err
	}

	s.logger.Info().Str("tenant_id", pending.TenantID.String()).Msg("office 365 connected")
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionUpdate,
		EntityType: entityType,
		Details:    map[string]interface{}{"connected": true},
	})
	return pending.TenantID, nil
}

func (s *Service) Disconnect(ctx context.Context) error {
	if err := s.repo.ClearToken(ctx, db.TenantFromContext(ctx)); err != nil {
		return err
	}
	s.activity.Record(ctx, activity.Entry{
		Action:     activity.ActionUpdate,
		EntityType: entityType,
		Details:    map[string]interface{}{"connected": false},
	})
	return nil
}

// Token returns a valid access token for the current tenant, refreshing it
// against the token endpoint when it has expired. A refreshed token is
// written back before it is returned.
func (s *Service) Token(ctx context.Context) (*oauth2.Token, error) {
	tenantID := db.TenantFromContext(ctx)
	st, err := s.settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if st.RefreshToken == nil || *st.RefreshToken == "" {
		return nil, apperr.Conflict("office 365 is not connected")
	}
	cfg, err := s.config(st)
	if err != nil {
		return nil, err
	}

	current := &oauth2.Token{TokenType: "Bearer", RefreshToken: *st.RefreshToken}
	if st.AccessToken != nil {
		current.AccessToken = *st.AccessToken
	}
	if st.TokenExpiresAt != nil {
		current.Expiry = *st.TokenExpiresAt
	}

	tok, err := cfg.TokenSource(s.oauthContext(ctx), current).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh office 365 token: %w", err)
	}
	if tok.AccessToken != current.AccessToken {
		if err := s.repo.SaveToken(ctx, tenantID, Token{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			Expiry:       tok.Expiry,
		}); err != nil {
			return nil, err
		}
		s.logger.Debug().Str("tenant_id", tenantID.String()).Time("expiry", tok.Expiry).Msg("office 365 token refreshed")
	}
	return tok, nil
}

// Status checks the connection by obtaining a usable token.
func (s *Service) Status(ctx context.Context) (*ConnectionStatus, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return &ConnectionStatus{Connected: false}, nil
		}
		return nil, err
	}
	return &ConnectionStatus{Connected: true, ExpiresAt: &tok.Expiry}, nil
}

type ConnectionStatus struct {
	Connected bool       `json:"connected"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

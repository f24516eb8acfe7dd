// Package features resolves feature flags: a tenant override wins over the
// global value, and an unset flag is off.
package features

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careadmin/careadmin/internal/platform/kv"
)

const (
	Notifications = "notifications"
	Presence      = "presence"
	Analytics     = "analytics"
	Office365     = "office365"
	Wearables     = "wearables"
	GPConnect     = "gp-connect"

	// resolvedTTL bounds how stale the cached tenant-features set can be.
	resolvedTTL = 5 * time.Minute
)

// Defaults are written as tenant overrides when a tenant is provisioned.
var Defaults = map[string]bool{
	Notifications: true,
	Presence:      true,
	Analytics:     true,
	Office365:     false,
	Wearables:     false,
	GPConnect:     false,
}

var flagPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,62}$`)

func ValidFlag(name string) bool { return flagPattern.MatchString(name) }

type Service struct {
	kv     *kv.Safe
	logger zerolog.Logger
}

func NewService(store *kv.Safe, logger zerolog.Logger) *Service {
	return &Service{kv: store, logger: logger.With().Str("component", "features").Logger()}
}

func (s *Service) Enabled(ctx context.Context, tenantID uuid.UUID, flag string) bool {
	return s.List(ctx, tenantID)[flag]
}

// List returns every known flag resolved for tenantID.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) map[string]bool {
	cacheKey := kv.TenantFeaturesKey(tenantID)
	var cached map[string]bool
	if s.kv.GetJSON(ctx, cacheKey, &cached) {
		return cached
	}

	resolved := map[string]bool{}
	for _, key := range s.kv.ScanKeys(ctx, kv.GlobalFeatureKey("*")) {
		flag := strings.TrimPrefix(key, kv.GlobalFeatureKey(""))
		resolved[flag] = s.flagValue(ctx, key)
	}
	overridePrefix := kv.FeatureKey(tenantID, "")
	for _, key := range s.kv.ScanKeys(ctx, overridePrefix+"*") {
		resolved[strings.TrimPrefix(key, overridePrefix)] = s.flagValue(ctx, key)
	}

	s.kv.SetJSON(ctx, cacheKey, resolved, resolvedTTL)
	return resolved
}

func (s *Service) flagValue(ctx context.Context, key string) bool {
	v, err := strconv.ParseBool(s.kv.GetString(ctx, key, "false"))
	return err == nil && v
}

// SetGlobal changes the default for every tenant and drops all resolved sets.
func (s *Service) SetGlobal(ctx context.Context, flag string, enabled bool) error {
	if !ValidFlag(flag) {
		return fmt.Errorf("invalid feature flag name %q", flag)
	}
	if !s.kv.SetString(ctx, kv.GlobalFeatureKey(flag), strconv.FormatBool(enabled), 0) {
		return fmt.Errorf("set global feature %q: store unavailable", flag)
	}
	s.kv.Del(ctx, s.kv.ScanKeys(ctx, "tenant-features:*")...)
	return nil
}

func (s *Service) SetTenant(ctx context.Context, tenantID uuid.UUID, flag string, enabled bool) error {
	if !ValidFlag(flag) {
		return fmt.Errorf("invalid feature flag name %q", flag)
	}
	if !s.kv.SetString(ctx, kv.FeatureKey(tenantID, flag), strconv.FormatBool(enabled), 0) {
		return fmt.Errorf("set feature %q: store unavailable", flag)
	}
	s.kv.Del(ctx, kv.TenantFeaturesKey(tenantID))
	return nil
}

// ClearTenant removes the override so the global value applies again.
func (s *Service) ClearTenant(ctx context.Context, tenantID uuid.UUID, flag string) {
	s.kv.Del(ctx, kv.FeatureKey(tenantID, flag), kv.TenantFeaturesKey(tenantID))
}

// ApplyDefaults writes Defaults as overrides for a new tenant.
func (s *Service) ApplyDefaults(ctx context.Context, tenantID uuid.UUID) error {
	for flag, on := range Defaults {
		if err := s.SetTenant(ctx, tenantID, flag, on); err != nil {
			return err
		}
	}
	return nil
}

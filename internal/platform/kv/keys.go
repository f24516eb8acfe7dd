package kv

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func PatientKey(tenantID, patientID uuid.UUID) string {
	return fmt.Sprintf("patient:%s:%s", tenantID, patientID)
}

// PatientNamespace is the cache namespace of one tenant's patients. Keys
// built from it with cache.Key match PatientKey until the namespace is
// invalidated.
func PatientNamespace(tenantID uuid.UUID) string {
	return "patient:" + tenantID.String()
}

func TenantKey(tenantID uuid.UUID) string {
	return "tenant:" + tenantID.String()
}

func TenantFeaturesKey(tenantID uuid.UUID) string {
	return "tenant-features:" + tenantID.String()
}

func FeatureKey(tenantID uuid.UUID, flag string) string {
	return fmt.Sprintf("feature:%s:%s", tenantID, flag)
}

func GlobalFeatureKey(flag string) string {
	return "global-feature:" + flag
}

// QueueKey holds pending job ids scored by priority.
func QueueKey(name string) string { return "queue:" + name }

// QueueJobsKey is the hash of job id to job body for every job the queue
// still knows about.
func QueueJobsKey(name string) string { return "queue:" + name + ":jobs" }

// QueueLeasesKey maps each leased job id to the token of its current lease.
func QueueLeasesKey(name string) string { return "queue:" + name + ":leases" }

func ProcessingKey(name string) string { return "processing:" + name }

func FailedKey(name string) string { return "failed:" + name }

func NotificationKey(id uuid.UUID) string {
	return "notification:" + id.String()
}

// UserNotificationsKey is the recipient's inbox index within one tenant.
func UserNotificationsKey(tenantID uuid.UUID, userID string) string {
	return "user-notifications:" + tenantID.String() + ":" + userID
}

func PresenceKey(tenantID uuid.UUID) string {
	return "presence:" + tenantID.String()
}

func PresenceUserKey(tenantID uuid.UUID, userID string) string {
	return fmt.Sprintf("presence:%s:%s", tenantID, userID)
}

// RateLimitKey names the counter of one fixed window.
func RateLimitKey(scope string, windowStart int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", scope, windowStart)
}

func PageviewsKey(tenantID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("pageviews:%s:%s", tenantID, day.UTC().Format("2006-01-02"))
}

func ActionsKey(tenantID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("actions:%s:%s", tenantID, day.UTC().Format("2006-01-02"))
}

// OAuthStateKey holds the pending tenant and user of one OAuth2 authorize
// round trip until the callback consumes it.
func OAuthStateKey(state string) string {
	return "oauth-state:" + state
}

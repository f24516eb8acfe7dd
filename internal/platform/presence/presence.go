// Package presence tracks which users of a tenant are currently active.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careadmin/careadmin/internal/platform/kv"
)

const (
	StatusOnline = "online"
	StatusAway   = "away"
	StatusBusy   = "busy"

	// StatusTTL bounds how long a status survives without a heartbeat.
	StatusTTL = 5 * time.Minute
	// DefaultWindow is how recent a heartbeat must be to count as online.
	DefaultWindow = 2 * time.Minute
)

var validStatuses = map[string]bool{StatusOnline: true, StatusAway: true, StatusBusy: true}

func ValidStatus(s string) bool { return validStatuses[s] }

type Entry struct {
	UserID   string    `json:"userId"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

type Tracker struct {
	rdb    redis.Cmdable
	logger zerolog.Logger
	now    func() time.Time
}

func NewTracker(rdb redis.Cmdable, logger zerolog.Logger) *Tracker {
	return &Tracker{rdb: rdb, logger: logger.With().Str("component", "presence").Logger(), now: time.Now}
}

// Heartbeat records userID as seen now with status (online when empty).
func (t *Tracker) Heartbeat(ctx context.Context, tenantID uuid.UUID, userID, status string) error {
	if status == "" {
		status = StatusOnline
	}
	if !ValidStatus(status) {
		return fmt.Errorf("invalid presence status %q", status)
	}
	now := t.now()
	key := kv.PresenceKey(tenantID)
	_, err := t.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{Score: float64(now.Unix()), Member: userID})
		p.Set(ctx, kv.PresenceUserKey(tenantID, userID), status, StatusTTL)
		// entries older than the status TTL can never be online again
		p.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-StatusTTL).Unix(), 10))
		p.Expire(ctx, key, StatusTTL)
		return nil
	})
	if err != nil {
		t.logger.Warn().Err(err).Str("user_id", userID).Msg("record heartbeat")
	}
	return nil
}

// Online lists users seen within window, most recent first. Redis failures
// yield an empty list.
func (t *Tracker) Online(ctx context.Context, tenantID uuid.UUID, window time.Duration) []Entry {
	if window <= 0 {
		window = DefaultWindow
	}
	since := t.now().Add(-window).Unix()
	zs, err := t.rdb.ZRevRangeByScoreWithScores(ctx, kv.PresenceKey(tenantID), &redis.ZRangeBy{
		Min: strconv.FormatInt(since, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		t.logger.Warn().Err(err).Msg("list online users")
		return []Entry{}
	}

	out := make([]Entry, 0, len(zs))
	for _, z := range zs {
		userID, _ := z.Member.(string)
		out = append(out, Entry{
			UserID:   userID,
			Status:   t.Status(ctx, tenantID, userID),
			LastSeen: time.Unix(int64(z.Score), 0).UTC(),
		})
	}
	return out
}

// Status is "offline" once the status key has expired.
func (t *Tracker) Status(ctx context.Context, tenantID uuid.UUID, userID string) string {
	st, err := t.rdb.Get(ctx, kv.PresenceUserKey(tenantID, userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			t.logger.Warn().Err(err).Str("user_id", userID).Msg("get presence status")
		}
		return "offline"
	}
	return st
}

func (t *Tracker) Leave(ctx context.Context, tenantID uuid.UUID, userID string) {
	_, err := t.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, kv.PresenceKey(tenantID), userID)
		p.Del(ctx, kv.PresenceUserKey(tenantID, userID))
		return nil
	})
	if err != nil {
		t.logger.Warn().Err(err).Str("user_id", userID).Msg("leave presence")
	}
}

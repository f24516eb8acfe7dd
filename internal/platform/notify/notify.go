// Package notify is the per-user in-app notification inbox kept in Redis.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careadmin/careadmin/internal/platform/kv"
)

const (
	// TTL applies to each notification and to the user's index.
	TTL = 30 * 24 * time.Hour
	// MaxPerUser caps the index; older entries are trimmed on write.
	MaxPerUser = 100
)

var ErrNotFound = errors.New("notification not found")

type Notification struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenantId"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	rdb    redis.Cmdable
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(rdb redis.Cmdable, logger zerolog.Logger) *Service {
	return &Service{
		rdb:    rdb,
		logger: logger.With().Str("component", "notify").Logger(),
		now:    time.Now,
	}
}

// Create stores n and indexes it under the recipient. ID and CreatedAt are
// assigned here.
func (s *Service) Create(ctx context.Context, n *Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("notification recipient is required")
	}
	n.ID = uuid.New()
	n.CreatedAt = s.now().UTC()
	n.Read = false

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	index := kv.UserNotificationsKey(n.TenantID, n.UserID)
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, kv.NotificationKey(n.ID), body, TTL)
		p.ZAdd(ctx, index, redis.Z{Score: float64(n.CreatedAt.UnixMilli()), Member: n.ID.String()})
		p.ZRemRangeByRank(ctx, index, 0, -(MaxPerUser + 1))
		p.Expire(ctx, index, TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

// ListForUser returns the newest notifications for userID within tenantID.
// Redis failures yield an empty inbox.
func (s *Service) ListForUser(ctx context.Context, tenantID uuid.UUID, userID string, limit int) []*Notification {
	if limit <= 0 || limit > MaxPerUser {
		limit = MaxPerUser
	}
	index := kv.UserNotificationsKey(tenantID, userID)
	ids, err := s.rdb.ZRevRange(ctx, index, 0, int64(limit-1)).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("list notifications")
		return []*Notification{}
	}
	if len(ids) == 0 {
		return []*Notification{}
	}

	var stale []interface{}
	keys := make([]string, 0, len(ids))
	live := ids[:0]
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			stale = append(stale, raw)
			continue
		}
		keys = append(keys, kv.NotificationKey(id))
		live = append(live, raw)
	}
	ids = live
	if len(keys) == 0 {
		s.prune(ctx, index, stale)
		return []*Notification{}
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("load notifications")
		return []*Notification{}
	}

	out := make([]*Notification, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var n Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			s.logger.Warn().Err(err).Str("id", ids[i]).Msg("discarding undecodable notification")
			continue
		}
		if n.TenantID != tenantID {
			continue
		}
		out = append(out, &n)
	}
	s.prune(ctx, index, stale)
	return out
}

// prune drops index entries whose notification has expired.
func (s *Service) prune(ctx context.Context, index string, ids []interface{}) {
	if len(ids) == 0 {
		return
	}
	if err := s.rdb.ZRem(ctx, index, ids...).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("prune expired notifications")
	}
}

func (s *Service) UnreadCount(ctx context.Context, tenantID uuid.UUID, userID string) int {
	count := 0
	for _, n := range s.ListForUser(ctx, tenantID, userID, MaxPerUser) {
		if !n.Read {
			count++
		}
	}
	return count
}

func (s *Service) load(ctx context.Context, tenantID uuid.UUID, userID string, id uuid.UUID) (*Notification, error) {
	raw, err := s.rdb.Get(ctx, kv.NotificationKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if n.UserID != userID || n.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return &n, nil
}

func (s *Service) save(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return s.rdb.SetArgs(ctx, kv.NotificationKey(n.ID), body, redis.SetArgs{KeepTTL: true}).Err()
}

func (s *Service) MarkRead(ctx context.Context, tenantID uuid.UUID, userID string, id uuid.UUID) (*Notification, error) {
	n, err := s.load(ctx, tenantID, userID, id)
	if err != nil {
		return nil, err
	}
	if n.Read {
		return n, nil
	}
	n.Read = true
	if err := s.save(ctx, n); err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return n, nil
}

// MarkAllRead returns how many notifications changed.
func (s *Service) MarkAllRead(ctx context.Context, tenantID uuid.UUID, userID string) (int, error) {
	changed := 0
	for _, n := range s.ListForUser(ctx, tenantID, userID, MaxPerUser) {
		if n.Read {
			continue
		}
		n.Read = true
		if err := s.save(ctx, n); err != nil {
			return changed, fmt.Errorf("mark notification read: %w", err)
		}
		changed++
	}
	return changed, nil
}

func (s *Service) Delete(ctx context.Context, tenantID uuid.UUID, userID string, id uuid.UUID) error {
	if _, err := s.load(ctx, tenantID, userID, id); err != nil {
		return err
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, kv.NotificationKey(id))
		p.ZRem(ctx, kv.UserNotificationsKey(tenantID, userID), id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

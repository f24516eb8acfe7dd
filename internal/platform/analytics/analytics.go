// Package analytics keeps per-tenant daily page view and action counters.
package analytics

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careadmin/careadmin/internal/platform/kv"
)

const (
	Retention  = 90 * 24 * time.Hour
	MaxDays    = 90
	defaultDay = 7
)

type Tracker struct {
	rdb    redis.Cmdable
	logger zerolog.Logger
	now    func() time.Time
}

func NewTracker(rdb redis.Cmdable, logger zerolog.Logger) *Tracker {
	return &Tracker{rdb: rdb, logger: logger.With().Str("component", "analytics").Logger(), now: time.Now}
}

func (t *Tracker) incr(ctx context.Context, key, field string) {
	_, err := t.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, key, field, 1)
		p.Expire(ctx, key, Retention)
		return nil
	})
	if err != nil {
		t.logger.Warn().Err(err).Str("key", key).Msg("increment counter")
	}
}

func (t *Tracker) TrackPageview(ctx context.Context, tenantID uuid.UUID, path string) {
	t.incr(ctx, kv.PageviewsKey(tenantID, t.now()), path)
}

func (t *Tracker) TrackAction(ctx context.Context, tenantID uuid.UUID, action string) {
	t.incr(ctx, kv.ActionsKey(tenantID, t.now()), action)
}

type Count struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

type Day struct {
	Date      string           `json:"date"`
	Pageviews int64            `json:"pageviews"`
	Actions   map[string]int64 `json:"actions"`
}

type Summary struct {
	From           string           `json:"from"`
	To             string           `json:"to"`
	TotalPageviews int64            `json:"totalPageviews"`
	TotalActions   map[string]int64 `json:"totalActions"`
	TopPaths       []Count          `json:"topPaths"`
	Days           []Day            `json:"days"`
}

// Summary aggregates the last days days (today included), oldest first.
// Days missing from Redis, or unreadable, count as zero.
func (t *Tracker) Summary(ctx context.Context, tenantID uuid.UUID, days int) Summary {
	if days <= 0 {
		days = defaultDay
	}
	if days > MaxDays {
		days = MaxDays
	}

	today := t.now().UTC()
	dates := make([]time.Time, days)
	for i := range dates {
		dates[i] = today.AddDate(0, 0, i-days+1)
	}

	pv := make([]*redis.MapStringStringCmd, days)
	ac := make([]*redis.MapStringStringCmd, days)
	_, err := t.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, d := range dates {
			pv[i] = p.HGetAll(ctx, kv.PageviewsKey(tenantID, d))
			ac[i] = p.HGetAll(ctx, kv.ActionsKey(tenantID, d))
		}
		return nil
	})
	if err != nil {
		t.logger.Warn().Err(err).Msg("load analytics summary")
	}

	s := Summary{
		From:         dates[0].Format("2006-01-02"),
		To:           dates[days-1].Format("2006-01-02"),
		TotalActions: map[string]int64{},
		Days:         make([]Day, days),
	}
	paths := map[string]int64{}
	for i, d := range dates {
		day := Day{Date: d.Format("2006-01-02"), Actions: map[string]int64{}}
		for path, n := range counts(pv[i]) {
			day.Pageviews += n
			paths[path] += n
		}
		for action, n := range counts(ac[i]) {
			day.Actions[action] = n
			s.TotalActions[action] += n
		}
		s.TotalPageviews += day.Pageviews
		s.Days[i] = day
	}
	s.TopPaths = top(paths, 10)
	return s
}

func counts(cmd *redis.MapStringStringCmd) map[string]int64 {
	out := map[string]int64{}
	if cmd == nil || cmd.Err() != nil {
		return out
	}
	for k, v := range cmd.Val() {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			out[k] = n
		}
	}
	return out
}

func top(m map[string]int64, n int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Name: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

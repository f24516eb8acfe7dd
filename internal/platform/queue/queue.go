// Package queue is a Redis-backed priority job queue with leases.
//
// Each named queue uses five keys:
//
//	queue:{name}         zset  pending job ids, lowest score first
//	processing:{name}    zset  leased job ids scored by lease deadline (ms)
//	failed:{name}        zset  failed job ids scored by failure time (ms)
//	queue:{name}:jobs    hash  job id -> job JSON
//	queue:{name}:leases  hash  job id -> token of the current lease
//
// A dequeued job stays leased until Complete, Fail or ReclaimExpired moves
// it on, so a crashed worker's jobs are redelivered (at-least-once). Complete,
// Fail and ExtendLease only act for the holder of the current lease.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/careadmin/careadmin/internal/platform/kv"
)

var (
	ErrEmpty       = errors.New("queue is empty")
	ErrJobNotFound = errors.New("job not found")
)

const (
	MinPriority  = -100
	MaxPriority  = 100
	DefaultLease = 5 * time.Minute

	// priorityWeight keeps FIFO order inside a priority band: millisecond
	// timestamps stay below it until the year 2286.
	priorityWeight = 1e13
)

type Job struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	Priority  int             `json:"priority"`
	Attempts  int             `json:"attempts"`
	Error     string          `json:"error,omitempty"`
	FailedAt  *time.Time      `json:"failedAt,omitempty"`

	// Lease identifies the dequeue that handed out this copy of the job.
	Lease string `json:"-"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Type, err)
	}
	return nil
}

type Stats struct {
	Queue      string `json:"queue"`
	Pending    int64  `json:"pending"`
	Processing int64  `json:"processing"`
	Failed     int64  `json:"failed"`
}

type Queue struct {
	rdb   redis.Cmdable
	lease time.Duration
	now   func() time.Time
}

func New(rdb redis.Cmdable, lease time.Duration) *Queue {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &Queue{rdb: rdb, lease: lease, now: time.Now}
}

func score(priority int, at time.Time) float64 {
	return -float64(priority)*priorityWeight + float64(at.UnixMilli())
}

// Enqueue adds a job. Higher priority is served first; equal priorities are
// served in arrival order.
func (q *Queue) Enqueue(ctx context.Context, queue, jobType string, data interface{}, priority int) (*Job, error) {
	if priority < MinPriority || priority > MaxPriority {
		return nil, fmt.Errorf("priority %d outside [%d, %d]", priority, MinPriority, MaxPriority)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", jobType, err)
	}
	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Data:      payload,
		CreatedAt: q.now().UTC(),
		Priority:  priority,
	}
	body, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}

	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, kv.QueueJobsKey(queue), job.ID, body)
		p.ZAdd(ctx, kv.QueueKey(queue), redis.Z{Score: score(priority, job.CreatedAt), Member: job.ID})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue %s on %s: %w", jobType, queue, err)
	}
	return job, nil
}

var dequeueScript = redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, 0)
if #ids == 0 then
  return false
end
local id = ids[1]
redis.call('ZREM', KEYS[1], id)
local body = redis.call('HGET', KEYS[3], id)
if not body then
  return {id, ''}
end
redis.call('ZADD', KEYS[2], ARGV[1], id)
redis.call('HSET', KEYS[4], id, ARGV[2])
return {id, body}
`)

// Dequeue leases the highest-priority pending job.
func (q *Queue) Dequeue(ctx context.Context, queue string) (*Job, error) {
	keys := []string{kv.QueueKey(queue), kv.ProcessingKey(queue), kv.QueueJobsKey(queue), kv.QueueLeasesKey(queue)}
	for {
		deadline := q.now().Add(q.lease).UnixMilli()
		lease := uuid.NewString()
		res, err := dequeueScript.Run(ctx, q.rdb, keys, deadline, lease).StringSlice()
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		if err != nil {
			return nil, fmt.Errorf("dequeue %s: %w", queue, err)
		}
		if len(res) != 2 || res[1] == "" {
			// id without a body; it was dropped by the script, try the next one
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return nil, fmt.Errorf("decode job %s: %w", res[0], err)
		}
		job.Lease = lease
		return &job, nil
	}
}

var completeScript = redis.NewScript(`
if redis.call('HGET', KEYS[3], ARGV[1]) ~= ARGV[2] then
  return 0
end
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
return 1
`)

// Complete removes a leased job for good. ErrJobNotFound when job's lease
// is no longer current.
func (q *Queue) Complete(ctx context.Context, queue string, job *Job) error {
	n, err := completeScript.Run(ctx, q.rdb,
		[]string{kv.ProcessingKey(queue), kv.QueueJobsKey(queue), kv.QueueLeasesKey(queue)},
		job.ID, leaseOf(job)).Int()
	if err != nil {
		return fmt.Errorf("complete %s: %w", job.ID, err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// moveScript moves id between sorted sets, optionally only when its current
// score is at most ARGV[4] or its lease is ARGV[5], and optionally rewrites
// its body. ARGV[6] = '1' ends the lease.
var moveScript = redis.NewScript(`
local s = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not s then
  return 0
end
if ARGV[4] ~= '' and tonumber(s) > tonumber(ARGV[4]) then
  return 0
end
if ARGV[5] ~= '' and redis.call('HGET', KEYS[4], ARGV[1]) ~= ARGV[5] then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
if ARGV[3] ~= '' then
  redis.call('HSET', KEYS[3], ARGV[1], ARGV[3])
end
if ARGV[6] == '1' then
  redis.call('HDEL', KEYS[4], ARGV[1])
end
return 1
`)

// moveOpts guards and side effects of a move.
type moveOpts struct {
	body     *Job
	maxScore string
	lease    string
	release  bool
}

func (q *Queue) move(ctx context.Context, queue, from, to, id string, toScore float64, o moveOpts) (bool, error) {
	body := ""
	if o.body != nil {
		b, err := json.Marshal(o.body)
		if err != nil {
			return false, err
		}
		body = string(b)
	}
	release := ""
	if o.release {
		release = "1"
	}
	n, err := moveScript.Run(ctx, q.rdb, []string{from, to, kv.QueueJobsKey(queue), kv.QueueLeasesKey(queue)},
		id, strconv.FormatFloat(toScore, 'f', -1, 64), body, o.maxScore, o.lease, release).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (q *Queue) load(ctx context.Context, queue, jobID string) (*Job, error) {
	body, err := q.rdb.HGet(ctx, kv.QueueJobsKey(queue), jobID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &job, nil
}

// Fail moves a leased job to the failed set, recording the cause.
// ErrJobNotFound when job's lease is no longer current.
func (q *Queue) Fail(ctx context.Context, queue string, job *Job, cause error) error {
	stored, err := q.load(ctx, queue, job.ID)
	if err != nil {
		return fmt.Errorf("fail %s: %w", job.ID, err)
	}
	now := q.now().UTC()
	stored.FailedAt = &now
	stored.Error = "unknown error"
	if cause != nil {
		stored.Error = cause.Error()
	}

	moved, err := q.move(ctx, queue, kv.ProcessingKey(queue), kv.FailedKey(queue), job.ID, float64(now.UnixMilli()),
		moveOpts{body: stored, lease: leaseOf(job), release: true})
	if err != nil {
		return fmt.Errorf("fail %s: %w", job.ID, err)
	}
	if !moved {
		return ErrJobNotFound
	}
	return nil
}

// leaseOf returns a token that never matches when the job was not dequeued.
func leaseOf(job *Job) string {
	if job.Lease == "" {
		return "-"
	}
	return job.Lease
}

// ExtendLease pushes the deadline of a leased job to now+d.
func (q *Queue) ExtendLease(ctx context.Context, queue string, job *Job, d time.Duration) error {
	deadline := float64(q.now().Add(d).UnixMilli())
	moved, err := q.move(ctx, queue, kv.ProcessingKey(queue), kv.ProcessingKey(queue), job.ID, deadline,
		moveOpts{lease: leaseOf(job)})
	if err != nil {
		return fmt.Errorf("extend lease %s: %w", job.ID, err)
	}
	if !moved {
		return ErrJobNotFound
	}
	return nil
}

// ReclaimExpired returns jobs whose lease ended before now to the pending
// set and reports how many moved.
func (q *Queue) ReclaimExpired(ctx context.Context, queue string, now time.Time) (int, error) {
	cutoff := strconv.FormatInt(now.UnixMilli(), 10)
	ids, err := q.rdb.ZRangeByScore(ctx, kv.ProcessingKey(queue), &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan expired leases on %s: %w", queue, err)
	}

	moved := 0
	for _, id := range ids {
		job, err := q.load(ctx, queue, id)
		if errors.Is(err, ErrJobNotFound) {
			q.rdb.ZRem(ctx, kv.ProcessingKey(queue), id)
			q.rdb.HDel(ctx, kv.QueueLeasesKey(queue), id)
			continue
		}
		if err != nil {
			return moved, err
		}
		job.Attempts++
		ok, err := q.move(ctx, queue, kv.ProcessingKey(queue), kv.QueueKey(queue), id,
			score(job.Priority, job.CreatedAt), moveOpts{body: job, maxScore: cutoff, release: true})
		if err != nil {
			return moved, fmt.Errorf("reclaim %s: %w", id, err)
		}
		if ok {
			moved++
		}
	}
	return moved, nil
}

// RetryFailedJobs moves up to limit of the oldest failed jobs back to the
// pending set with their error cleared and attempts bumped.
func (q *Queue) RetryFailedJobs(ctx context.Context, queue string, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	ids, err := q.rdb.ZRange(ctx, kv.FailedKey(queue), 0, int64(limit-1)).Result()
	if err != nil {
		return 0, fmt.Errorf("list failed jobs on %s: %w", queue, err)
	}

	retried := 0
	for _, id := range ids {
		job, err := q.load(ctx, queue, id)
		if errors.Is(err, ErrJobNotFound) {
			q.rdb.ZRem(ctx, kv.FailedKey(queue), id)
			continue
		}
		if err != nil {
			return retried, err
		}
		job.Error = ""
		job.FailedAt = nil
		job.Attempts++
		ok, err := q.move(ctx, queue, kv.FailedKey(queue), kv.QueueKey(queue), id,
			score(job.Priority, q.now()), moveOpts{body: job})
		if err != nil {
			return retried, fmt.Errorf("retry %s: %w", id, err)
		}
		if ok {
			retried++
		}
	}
	return retried, nil
}

// Failed lists up to limit failed jobs, oldest first.
func (q *Queue) Failed(ctx context.Context, queue string, limit int) ([]*Job, error) {
	ids, err := q.rdb.ZRange(ctx, kv.FailedKey(queue), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list failed jobs on %s: %w", queue, err)
	}
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.load(ctx, queue, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *Queue) Stats(ctx context.Context, queue string) (Stats, error) {
	var pending, processing, failed *redis.IntCmd
	_, err := q.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		pending = p.ZCard(ctx, kv.QueueKey(queue))
		processing = p.ZCard(ctx, kv.ProcessingKey(queue))
		failed = p.ZCard(ctx, kv.FailedKey(queue))
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("stats %s: %w", queue, err)
	}
	return Stats{
		Queue:      queue,
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Failed:     failed.Val(),
	}, nil
}

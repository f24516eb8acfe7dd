package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Handler processes one job. A returned error fails the job.
type Handler func(ctx context.Context, job *Job) error

// JobSource is the part of *Queue the worker depends on.
type JobSource interface {
	Dequeue(ctx context.Context, queue string) (*Job, error)
	Complete(ctx context.Context, queue string, job *Job) error
	Fail(ctx context.Context, queue string, job *Job, cause error) error
	ReclaimExpired(ctx context.Context, queue string, now time.Time) (int, error)
	Stats(ctx context.Context, queue string) (Stats, error)
}

type Observer interface {
	JobFinished(queue, jobType, outcome string, d time.Duration)
	QueueDepth(queue string, pending, processing, failed int64)
}

type WorkerConfig struct {
	Queues          []string
	Concurrency     int
	PollInterval    time.Duration
	ReclaimInterval time.Duration
	// JobTimeout bounds a single handler call; keep it below the lease.
	JobTimeout time.Duration
}

func (c *WorkerConfig) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.ReclaimInterval <= 0 {
		c.ReclaimInterval = 30 * time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 4 * time.Minute
	}
	if len(c.Queues) == 0 {
		c.Queues = []string{"default"}
	}
}

type Worker struct {
	src    JobSource
	cfg    WorkerConfig
	obs    Observer
	logger zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewWorker(src JobSource, cfg WorkerConfig, logger zerolog.Logger, obs Observer) *Worker {
	cfg.defaults()
	return &Worker{
		src:      src,
		cfg:      cfg,
		obs:      obs,
		logger:   logger.With().Str("component", "worker").Logger(),
		handlers: make(map[string]Handler),
	}
}

// Handle registers h for jobs of jobType, replacing any previous handler.
func (w *Worker) Handle(jobType string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = h
}

func (w *Worker) handler(jobType string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[jobType]
	return h, ok
}

// Run polls until ctx is cancelled, then waits for in-flight jobs.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().
		Strs("queues", w.cfg.Queues).
		Int("concurrency", w.cfg.Concurrency).
		Msg("worker started")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		slot := i
		g.Go(func() error {
			w.poll(gctx, slot)
			return nil
		})
	}
	g.Go(func() error {
		w.maintain(gctx)
		return nil
	})

	err := g.Wait()
	w.logger.Info().Msg("worker stopped")
	return err
}

func (w *Worker) poll(ctx context.Context, slot int) {
	// stagger the starting queue so slots do not all hit the same key first
	next := slot % len(w.cfg.Queues)
	for {
		if ctx.Err() != nil {
			return
		}
		worked := false
		for i := 0; i < len(w.cfg.Queues); i++ {
			name := w.cfg.Queues[(next+i)%len(w.cfg.Queues)]
			job, err := w.src.Dequeue(ctx, name)
			if errors.Is(err, ErrEmpty) {
				continue
			}
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Warn().Err(err).Str("queue", name).Msg("dequeue failed")
				}
				continue
			}
			w.process(ctx, name, job)
			worked = true
			next = (next + i + 1) % len(w.cfg.Queues)
			break
		}
		if worked {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// process runs the handler on a context detached from shutdown so an
// in-flight job can finish.
func (w *Worker) process(ctx context.Context, queue string, job *Job) {
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.JobTimeout)
	defer cancel()

	log := w.logger.With().Str("queue", queue).Str("job_id", job.ID).Str("type", job.Type).Logger()
	start := time.Now()

	err := w.invoke(jctx, job)
	outcome := "completed"
	if err != nil {
		outcome = "failed"
		log.Warn().Err(err).Int("attempts", job.Attempts).Msg("job failed")
		if ferr := w.src.Fail(jctx, queue, job, err); ferr != nil {
			log.Error().Err(ferr).Msg("record job failure")
		}
	} else {
		if cerr := w.src.Complete(jctx, queue, job); cerr != nil {
			log.Error().Err(cerr).Msg("complete job")
		}
		log.Debug().Dur("took", time.Since(start)).Msg("job completed")
	}
	if w.obs != nil {
		w.obs.JobFinished(queue, job.Type, outcome, time.Since(start))
	}
}

func (w *Worker) invoke(ctx context.Context, job *Job) (err error) {
	h, ok := w.handler(job.Type)
	if !ok {
		return fmt.Errorf("no handler registered for job type %q", job.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().
				Str("job_id", job.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("job handler panicked")
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

func (w *Worker) maintain(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ReclaimInterval)
	defer ticker.Stop()
	for {
		w.reclaim(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) reclaim(ctx context.Context) {
	for _, name := range w.cfg.Queues {
		n, err := w.src.ReclaimExpired(ctx, name, time.Now())
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Warn().Err(err).Str("queue", name).Msg("reclaim expired leases")
			}
			continue
		}
		if n > 0 {
			w.logger.Info().Str("queue", name).Int("reclaimed", n).Msg("expired leases returned to queue")
		}
		if w.obs == nil {
			continue
		}
		if st, err := w.src.Stats(ctx, name); err == nil {
			w.obs.QueueDepth(name, st.Pending, st.Processing, st.Failed)
		}
	}
}

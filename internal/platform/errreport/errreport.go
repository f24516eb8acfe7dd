// Package errreport forwards unexpected failures to an error tracker.
package errreport

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

type Reporter interface {
	CaptureError(ctx context.Context, err error, tags map[string]string)
	CaptureMessage(ctx context.Context, msg string, tags map[string]string)
	Flush(timeout time.Duration) bool
}

// New returns a SentryReporter when dsn is set and a LogReporter otherwise.
func New(dsn, environment, release string, logger zerolog.Logger) (Reporter, error) {
	if dsn == "" {
		return NewLogReporter(logger), nil
	}
	return NewSentryReporter(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
		SampleRate:  1.0,
	})
}

// LogReporter writes reports to the log only.
type LogReporter struct {
	logger zerolog.Logger
}

func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger.With().Str("component", "errreport").Logger()}
}

func (r *LogReporter) CaptureError(_ context.Context, err error, tags map[string]string) {
	evt := r.logger.Error().Err(err)
	for k, v := range tags {
		evt = evt.Str(k, v)
	}
	evt.Msg("error reported")
}

func (r *LogReporter) CaptureMessage(_ context.Context, msg string, tags map[string]string) {
	evt := r.logger.Warn()
	for k, v := range tags {
		evt = evt.Str(k, v)
	}
	evt.Msg(msg)
}

func (r *LogReporter) Flush(time.Duration) bool { return true }

// SentryReporter sends events through its own hub rather than the sentry
// globals so tests can install a transport.
type SentryReporter struct {
	hub *sentry.Hub
}

func NewSentryReporter(opts sentry.ClientOptions) (*SentryReporter, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("sentry client: %w", err)
	}
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (r *SentryReporter) CaptureError(_ context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}

func (r *SentryReporter) CaptureMessage(_ context.Context, msg string, tags map[string]string) {
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTags(tags)
		r.hub.CaptureMessage(msg)
	})
}

func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careadmin/careadmin/internal/config"
	"github.com/careadmin/careadmin/internal/domain/appointment"
	"github.com/careadmin/careadmin/internal/domain/careplan"
	"github.com/careadmin/careadmin/internal/domain/careprofessional"
	"github.com/careadmin/careadmin/internal/domain/document"
	"github.com/careadmin/careadmin/internal/domain/integration/gpconnect"
	"github.com/careadmin/careadmin/internal/domain/integration/office365"
	"github.com/careadmin/careadmin/internal/domain/integration/wearable"
	"github.com/careadmin/careadmin/internal/domain/medicalhistory"
	"github.com/careadmin/careadmin/internal/domain/medication"
	"github.com/careadmin/careadmin/internal/domain/patient"
	"github.com/careadmin/careadmin/internal/domain/task"
	"github.com/careadmin/careadmin/internal/domain/tenant"
	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/analytics"
	"github.com/careadmin/careadmin/internal/platform/cache"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/errreport"
	"github.com/careadmin/careadmin/internal/platform/features"
	"github.com/careadmin/careadmin/internal/platform/kv"
	"github.com/careadmin/careadmin/internal/platform/metrics"
	"github.com/careadmin/careadmin/internal/platform/notify"
	"github.com/careadmin/careadmin/internal/platform/presence"
	"github.com/careadmin/careadmin/internal/platform/queue"
	"github.com/careadmin/careadmin/internal/platform/ratelimit"
)

// app holds the connections and services shared by serve and worker.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	pool     *pgxpool.Pool
	rdb      *redis.Client
	metrics  *metrics.Metrics
	reporter errreport.Reporter

	cache     *cache.Cache
	queue     *queue.Queue
	analytics *analytics.Tracker
	presence  *presence.Tracker
	limiter   *ratelimit.Limiter
	notify    *notify.Service
	features  *features.Service
	activity  *activity.Service

	patients          *patient.Service
	appointments      *appointment.Service
	carePlans         *careplan.Service
	medications       *medication.Service
	documents         *document.Service
	tasks             *task.Service
	medicalHistory    *medicalhistory.Service
	careProfessionals *careprofessional.Service
	tenants           *tenant.Service

	office365 *office365.Service
	wearables *wearable.Service
	gpConnect *gpconnect.Service
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	reporter, err := errreport.New(cfg.SentryDSN, cfg.Env, version, logger)
	if err != nil {
		return nil, fmt.Errorf("init error reporting: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	logger.Info().Msg("connected to database")

	rdb, err := kv.NewClient(cfg.RedisURL, cfg.RedisToken)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis client: %w", err)
	}
	// Redis is optional at runtime; every consumer degrades when it is down.
	if err := kv.Ping(ctx, rdb); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, continuing in degraded mode")
	} else {
		logger.Info().Msg("connected to redis")
	}

	return buildApp(cfg, logger, pool, rdb, reporter), nil
}

// buildApp wires every service on top of already opened connections.
func buildApp(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, rdb *redis.Client, reporter errreport.Reporter) *app {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		rdb:      rdb,
		metrics:  metrics.New(),
		reporter: reporter,
	}

	a.cache = cache.New(rdb, logger, cache.Options{Observer: a.metrics})
	a.queue = queue.New(rdb, cfg.QueueLease)
	a.analytics = analytics.NewTracker(rdb, logger)
	a.presence = presence.NewTracker(rdb, logger)
	a.limiter = ratelimit.New(rdb, logger)
	a.notify = notify.NewService(rdb, logger)
	a.features = features.NewService(kv.NewSafe(rdb, logger), logger)
	a.activity = activity.NewService(activity.NewRepoPG(pool), a.analytics, reporter, logger)

	patientRepo := patient.NewRepoPG(pool)
	a.patients = patient.NewService(patientRepo, a.cache, cfg.CacheTTL, a.activity)
	a.appointments = appointment.NewService(appointment.NewRepoPG(pool), a.activity)
	a.carePlans = careplan.NewService(careplan.NewRepoPG(pool), a.activity)
	a.medications = medication.NewService(medication.NewRepoPG(pool), a.activity)
	a.documents = document.NewService(document.NewRepoPG(pool), a.activity)
	a.tasks = task.NewService(task.NewRepoPG(pool), a.activity, a.notify, logger)
	a.medicalHistory = medicalhistory.NewService(medicalhistory.NewRepoPG(pool), a.activity)
	a.careProfessionals = careprofessional.NewService(careprofessional.NewRepoPG(pool), a.activity)
	a.tenants = tenant.NewService(tenant.NewRepoPG(pool), a.cache, a.features, a.activity, logger)

	a.office365 = office365.NewService(office365.NewRepoPG(pool), rdb, office365.OAuthConfig{
		ClientID:     cfg.Office365ClientID,
		ClientSecret: cfg.Office365ClientSecret,
		RedirectURL:  cfg.Office365RedirectURL,
	}, a.activity, logger)
	a.wearables = wearable.NewService(wearable.NewRepoPG(pool), wearable.NewProviderClient(cfg.WearableAPIURL), a.queue, a.activity, logger)
	a.gpConnect = gpconnect.NewService(gpconnect.NewRepoPG(pool), patientRepo, a.medicalHistory,
		gpconnect.NewClient(cfg.GPConnectBaseURL), a.queue, a.activity, logger)

	return a
}

func (a *app) Close() {
	if err := a.rdb.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close redis")
	}
	a.pool.Close()
	a.reporter.Flush(flushTimeout)
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

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
	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/errreport"
	"github.com/careadmin/careadmin/internal/platform/features"
	"github.com/careadmin/careadmin/internal/platform/middleware"
	"github.com/careadmin/careadmin/internal/platform/notify"
	"github.com/careadmin/careadmin/internal/platform/presence"
	"github.com/careadmin/careadmin/internal/platform/ratelimit"
	"github.com/careadmin/careadmin/internal/platform/response"
)

const (
	shutdownTimeout = 10 * time.Second
	flushTimeout    = 2 * time.Second
	requestTimeout  = 30 * time.Second
	bodyLimit       = "10M"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := newEcho(a)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// without invalidation broadcasts L1 entries still expire on LocalTTL
		if err := a.cache.Run(gctx); err != nil {
			logger.Warn().Err(err).Msg("cache invalidation listener stopped")
		}
		return nil
	})
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newEcho builds the router with the full middleware stack and every route.
func newEcho(a *app) (*echo.Echo, error) {
	cfg := a.cfg
	logger := a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = response.ErrorHandler(logger, a.reporter)

	e.Use(a.metrics.Middleware())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger, a.reporter))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.RequestTimeout(requestTimeout, isLongRunning))
	e.Use(activity.ClientIP())
	e.Use(ratelimit.Middleware(a.limiter, cfg.RateLimit, cfg.RateWindow))

	authMW, err := authMiddleware(a)
	if err != nil {
		return nil, err
	}

	// Public
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(a.pool))
	e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))
	e.POST("/api/errors", errreport.Handler(a.reporter))
	office365Handler := office365.NewHandler(a.office365)
	office365Handler.RegisterCallback(e)

	// Signed in, no tenant yet.
	tenantHandler := tenant.NewHandler(a.tenants)
	account := e.Group("/api")
	tenantHandler.RegisterAccountRoutes(account, authMW)
	tenantHandler.RegisterAdminRoutes(account, authMW)

	// Tenant scoped
	api := e.Group("/api",
		authMW,
		db.TenantMiddleware(cfg.DefaultTenantID()),
		tenant.RequireActive(a.tenants),
		tenant.RequireMember(a.tenants),
		analytics.Middleware(a.analytics),
	)

	notify.NewHandler(a.notify).RegisterRoutes(api)
	presence.NewHandler(a.presence).RegisterRoutes(api)
	analytics.NewHandler(a.analytics).RegisterRoutes(api)
	features.NewHandler(a.features).RegisterRoutes(api)
	activity.NewHandler(a.activity).RegisterRoutes(api)

	patient.NewHandler(a.patients).RegisterRoutes(api)
	appointment.NewHandler(a.appointments).RegisterRoutes(api)
	careplan.NewHandler(a.carePlans).RegisterRoutes(api)
	medication.NewHandler(a.medications).RegisterRoutes(api)
	document.NewHandler(a.documents).RegisterRoutes(api)
	task.NewHandler(a.tasks).RegisterRoutes(api)
	medicalhistory.NewHandler(a.medicalHistory).RegisterRoutes(api)
	careprofessional.NewHandler(a.careProfessionals).RegisterRoutes(api)
	tenantHandler.RegisterRoutes(api)

	office365Handler.RegisterRoutes(api, features.Require(a.features, features.Office365))
	wearable.NewHandler(a.wearables).RegisterRoutes(api, features.Require(a.features, features.Wearables))
	gpconnect.NewHandler(a.gpConnect).RegisterRoutes(api, features.Require(a.features, features.GPConnect))

	return e, nil
}

// authMiddleware verifies bearer tokens against AUTH_SIGNING_KEY or the
// issuer's JWKS. Development additionally admits anonymous callers.
func authMiddleware(a *app) (echo.MiddlewareFunc, error) {
	cfg := a.cfg
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
	if cfg.AuthSigningKey == "" && cfg.AuthIssuer != "" {
		provider, err := auth.NewOIDCProvider(cfg.AuthIssuer)
		if err != nil {
			return nil, err
		}
		jwtCfg.SigningKey = nil
		jwtCfg.JWKSURL = provider.JWKSURI
	}

	if cfg.IsDev() {
		return auth.DevAuthMiddleware(jwtCfg, cfg.DefaultTenant), nil
	}
	return auth.JWTMiddleware(jwtCfg), nil
}

// isLongRunning exempts exports from the request timeout.
func isLongRunning(path string) bool {
	return strings.HasSuffix(path, "/export")
}

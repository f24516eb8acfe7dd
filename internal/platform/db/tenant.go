package db

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const TenantIDKey contextKey = "tenant_id"

// Where the request tenant was resolved from. Only TenantFromClaim is
// vouched for by the token issuer.
const (
	TenantFromClaim   = "claim"
	TenantFromRequest = "request"
	TenantFromDefault = "default"
)

const tenantSourceKey = "tenant_source"

// TenantMiddleware resolves the tenant for the request and stores it in the
// request context. Requests without a resolvable tenant are rejected.
func TenantMiddleware(defaultTenant uuid.UUID) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, source := extractTenantID(c)
			tenantID := defaultTenant
			if raw == "" {
				source = TenantFromDefault
			} else {
				id, err := uuid.Parse(raw)
				if err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
				}
				tenantID = id
			}
			if tenantID == uuid.Nil {
				return echo.NewHTTPError(http.StatusBadRequest, "tenant is required")
			}

			ctx := WithTenant(c.Request().Context(), tenantID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_id", tenantID.String())
			c.Set(tenantSourceKey, source)

			return next(c)
		}
	}
}

func extractTenantID(c echo.Context) (string, string) {
	// 1. Check JWT claim (set by auth middleware)
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		return tid, TenantFromClaim
	}

	// 2. Check X-Tenant-ID header
	if tid := c.Request().Header.Get("X-Tenant-ID"); tid != "" {
		return tid, TenantFromRequest
	}

	// 3. Check query parameter
	return c.QueryParam("tenant_id"), TenantFromRequest
}

// TenantSource reports how TenantMiddleware resolved the tenant for c.
func TenantSource(c echo.Context) string {
	src, _ := c.Get(tenantSourceKey).(string)
	return src
}

func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// TenantFromContext returns the request tenant, or uuid.Nil outside a
// tenant-scoped request.
func TenantFromContext(ctx context.Context) uuid.UUID {
	tid, _ := ctx.Value(TenantIDKey).(uuid.UUID)
	return tid
}

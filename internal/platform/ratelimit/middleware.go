package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/careadmin/careadmin/internal/platform/response"
)

// Middleware limits each tenant and client IP pair to limit requests per
// window. A zero limit disables it.
func Middleware(l *Limiter, limit int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if limit <= 0 {
			return next
		}
		return func(c echo.Context) error {
			tenantID, _ := c.Get("tenant_id").(string)
			scope := "api:" + tenantID + ":" + c.RealIP()

			res, err := l.Allow(c.Request().Context(), scope, limit, window)
			if err != nil {
				return err
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))

			if !res.Allowed {
				h.Set("Retry-After", strconv.Itoa(res.RetryAfter(l.now())))
				return response.Fail(c, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			}
			return next(c)
		}
	}
}

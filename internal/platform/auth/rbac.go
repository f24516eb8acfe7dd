package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleOwner     = "owner"
	RoleAdmin     = "admin"
	RoleClinician = "clinician"
	RoleStaff     = "staff"
	RoleViewer    = "viewer"

	// RolePlatformAdmin operates across tenants and is never implied by a
	// tenant role.
	RolePlatformAdmin = "platform-admin"
)

// HasRole reports whether roles satisfy required. Owners and admins satisfy
// every tenant role.
func HasRole(roles []string, required string) bool {
	for _, has := range roles {
		if has == required {
			return true
		}
		if required != RolePlatformAdmin && (has == RoleAdmin || has == RoleOwner) {
			return true
		}
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				if HasRole(userRoles, required) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

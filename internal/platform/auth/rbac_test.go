package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHasRole(t *testing.T) {
	tests := []struct {
		roles    []string
		required string
		want     bool
	}{
		{[]string{RoleClinician}, RoleClinician, true},
		{[]string{RoleStaff}, RoleClinician, false},
		{[]string{RoleAdmin}, RoleClinician, true},
		{[]string{RoleOwner}, RoleAdmin, true},
		{[]string{RoleOwner}, RolePlatformAdmin, false},
		{[]string{RolePlatformAdmin}, RolePlatformAdmin, true},
		{nil, RoleViewer, false},
	}

	for _, tt := range tests {
		if got := HasRole(tt.roles, tt.required); got != tt.want {
			t.Errorf("HasRole(%v, %q) = %v, want %v", tt.roles, tt.required, got, tt.want)
		}
	}
}

func requestWithRoles(roles []string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, roles))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRequireRole_Allowed(t *testing.T) {
	c, rec := requestWithRoles([]string{RoleClinician})

	if err := RequireRole(RoleClinician, RoleStaff)(okHandler)(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c, _ := requestWithRoles([]string{RoleViewer})

	err := RequireRole(RoleClinician, RoleStaff)(okHandler)(c)
	expectStatus(t, err, http.StatusForbidden)
	if msg := err.(*echo.HTTPError).Message; msg != "required role: clinician or staff" {
		t.Errorf("unexpected message %v", msg)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	c, _ := requestWithRoles([]string{RoleAdmin})
	if err := RequireRole(RoleClinician)(okHandler)(c); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_PlatformAdminNotImplied(t *testing.T) {
	c, _ := requestWithRoles([]string{RoleOwner})
	err := RequireRole(RolePlatformAdmin)(okHandler)(c)
	expectStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_NoRoles(t *testing.T) {
	c, _ := requestWithRoles(nil)
	err := RequireRole(RoleViewer)(okHandler)(c)
	expectStatus(t, err, http.StatusForbidden)
}

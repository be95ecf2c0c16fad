package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func withIdentity(roles, scopes []string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/tracker", nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, roles)
	ctx = context.WithValue(ctx, UserScopesKey, scopes)
	return e.NewContext(req.WithContext(ctx), httptest.NewRecorder())
}

func ok(c echo.Context) error { return c.NoContent(http.StatusOK) }

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		roles   []string
		allowed bool
	}{
		{"matching role", []string{"data-entry"}, true},
		{"one of many", []string{"viewer", "data-entry"}, true},
		{"admin bypass", []string{"admin"}, true},
		{"other role", []string{"viewer"}, false},
		{"no roles", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireRole("data-entry", "supervisor")(ok)(withIdentity(tt.roles, nil))
			if tt.allowed && err != nil {
				t.Fatalf("expected access, got %v", err)
			}
			if !tt.allowed {
				if err == nil {
					t.Fatal("expected error")
				}
				if code := statusOf(t, err); code != http.StatusForbidden {
					t.Errorf("expected 403, got %d", code)
				}
			}
		})
	}
}

func TestRequireScope(t *testing.T) {
	tests := []struct {
		scopes  []string
		allowed bool
	}{
		{[]string{"tracker:write"}, true},
		{[]string{"tracker:*"}, true},
		{[]string{"*"}, true},
		{[]string{"tracker:read"}, false},
		{[]string{"metadata:*"}, false},
		{[]string{"tracker"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		err := RequireScope("tracker", "write")(ok)(withIdentity(nil, tt.scopes))
		if (err == nil) != tt.allowed {
			t.Errorf("scopes %v: allowed=%v, got err=%v", tt.scopes, tt.allowed, err)
		}
	}
}

func TestContextHelpers_Empty(t *testing.T) {
	ctx := context.Background()
	if UserIDFromContext(ctx) != "" || UsernameFromContext(ctx) != "" {
		t.Error("expected empty identity")
	}
	if RolesFromContext(ctx) != nil || ScopesFromContext(ctx) != nil {
		t.Error("expected nil roles and scopes")
	}
}

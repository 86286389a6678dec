package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func protectedEcho(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := GetPrincipalFromContext(r.Context())
		if !ok || principal == nil {
			t.Fatalf("expected a principal in context")
		}
		w.Write([]byte(principal.Name))
	})
}

func TestTokenAuth(t *testing.T) {
	tokens := map[string]Principal{
		"admin-token":   {Name: "admin", Role: RoleAdmin},
		"webhook-token": {Name: "tradingview", Role: RoleWebhook},
	}
	handler := TokenAuth(tokens)(protectedEcho(t))

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/positions", nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/positions", nil)
		r.Header.Set("X-Api-Token", "guess")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("valid token attaches principal", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/positions", nil)
		r.Header.Set("X-Api-Token", "webhook-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if w.Body.String() != "tradingview" {
			t.Fatalf("unexpected principal %q", w.Body.String())
		}
	})
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	serve := func(principal *Principal) int {
		handler := RequireRole(RoleWebhook)(ok)
		r := httptest.NewRequest(http.MethodPost, "/webhook/signal", nil)
		if principal != nil {
			r = r.WithContext(WithPrincipal(r.Context(), principal))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	if code := serve(nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without principal, got %d", code)
	}
	if code := serve(&Principal{Name: "ops", Role: RoleOperator}); code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong role, got %d", code)
	}
	if code := serve(&Principal{Name: "hook", Role: RoleWebhook}); code != http.StatusOK {
		t.Fatalf("expected 200 for matching role, got %d", code)
	}
	// Admin passes everywhere.
	if code := serve(&Principal{Name: "root", Role: RoleAdmin}); code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", code)
	}
}

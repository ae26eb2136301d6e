package e2e

import (
	"net/http"
	"testing"
)

func TestHealth(t *testing.T) {
	ta := setupApp(t)

	resp := mustRequest(t, ta.app, http.MethodGet, "/health", "")
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", body["status"])
	}
	if _, ok := body["services"]; !ok {
		t.Error("expected 'services' field in response")
	}
}

func TestAuthVerify_NoToken(t *testing.T) {
	ta := setupApp(t)

	resp := mustRequest(t, ta.app, http.MethodGet, "/auth/verify", "")
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestAuthVerify_ValidToken(t *testing.T) {
	ta := setupApp(t)

	resp := doAuthRequest(t, ta.app, "diva", http.MethodGet, "/auth/verify", "")
	assertStatus(t, resp, http.StatusOK)

	if got := resp.Header.Get("X-User-Id"); got != "diva" {
		t.Errorf("expected X-User-Id 'diva', got %q", got)
	}
}

func TestAuthVerify_InvalidToken(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/auth/verify", "", map[string]string{
		"Authorization": "Bearer garbage",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
}

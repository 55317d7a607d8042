package http

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scrapeforge/internal/store"
)

func newTestServer(t *testing.T, authEnabled bool) *Server {
	t.Helper()
	cfg := testConfig()
	cfg.Auth.Enabled = authEnabled
	cfg.Auth.APIKey = "sf_router_key"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := emptyOrchestrator(cfg)
	return NewServer(cfg, &store.Store{}, orch, &stubProcessor{}, logger)
}

func TestHealthz_Shallow(t *testing.T) {
	srv := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if !strings.Contains(string(body), `"status":"ok"`) {
		t.Fatalf("expected ok status, got %s", body)
	}
}

func TestMetricsEndpoint_ExportsText(t *testing.T) {
	srv := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if !strings.Contains(string(body), "scrapeforge_http_requests_total") {
		t.Fatalf("expected request counter in export, got %s", body)
	}
}

func TestRequestID_EchoedAndGenerated(t *testing.T) {
	srv := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-abc-123")
	resp, err := srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if got := resp.Header.Get("X-Request-Id"); got != "req-abc-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err = srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if got := resp.Header.Get("X-Request-Id"); got == "" {
		t.Fatalf("expected generated request id header")
	}
}

func TestV1Routes_RequireAuth(t *testing.T) {
	srv := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	resp, err := srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	// Health and metrics stay open.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err = srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for /healthz without auth, got %d", resp.StatusCode)
	}
}

func TestV1Scrape_ThroughRouter(t *testing.T) {
	srv := newTestServer(t, false)

	body := `{"url": "https://example.test/", "rules": [{"fieldName": "title", "selector": "h1"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/scrape", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

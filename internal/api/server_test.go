package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/domainposture/posture-cli/internal/gate"
	"github.com/domainposture/posture-cli/internal/scan"
)

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *ScanManager, *memStore) {
	t.Helper()

	st := newMemStore()
	manager := NewScanManager(newTestOrchestrator(t), ManagerConfig{
		Store:  st,
		Logger: zaptest.NewLogger(t),
	})
	cfg := Config{
		Scans: manager,
		Definitions: []scan.Definition{
			{ID: "alpha", Label: "Alpha", Description: "first test probe", Timeout: 8 * time.Second},
			{ID: "beta", Label: "Beta", Description: "second test probe"},
		},
		Store:  st,
		Logger: zaptest.NewLogger(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewServer(cfg), manager, st
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response body failed: %v (body %s)", err, rec.Body.String())
	}
	return out
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t, func(cfg *Config) {
		cfg.AuthToken = "secret"
	})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 without auth, got %d", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Expected an X-Request-ID response header")
	}
}

func TestProbesEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/probes", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	infos := decodeBody[[]probeInfo](t, rec)
	if len(infos) != 2 {
		t.Fatalf("Expected 2 probes, got %d", len(infos))
	}
	if infos[0].ID != "alpha" || infos[0].Timeout != "8s" {
		t.Errorf("Expected alpha with 8s timeout, got %+v", infos[0])
	}
	if infos[1].Timeout != "" {
		t.Errorf("Expected no timeout for beta, got %q", infos[1].Timeout)
	}
}

func TestStartScan(t *testing.T) {
	srv, manager, _ := newTestServer(t, nil)

	body := strings.NewReader(`{"domain": "  ExAmPle.COM "}`)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scans", body))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d (body %s)", rec.Code, rec.Body.String())
	}
	job := decodeBody[ScanJob](t, rec)
	if job.Domain != "example.com" {
		t.Errorf("Expected normalized domain, got %s", job.Domain)
	}

	done := waitForJob(t, manager, job.ID)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scans/"+done.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for job lookup, got %d", rec.Code)
	}
	fetched := decodeBody[ScanJob](t, rec)
	if fetched.Status != ScanStatusDone {
		t.Errorf("Expected done job, got %s", fetched.Status)
	}
	if fetched.Aggregate == nil || len(fetched.Aggregate.Probes) != 2 {
		t.Errorf("Expected an aggregate with 2 probes, got %+v", fetched.Aggregate)
	}
}

func TestStartScanInvalidDomain(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	body := strings.NewReader(`{"domain": "https://example.com/path"}`)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scans", body))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestStartScanRateLimited(t *testing.T) {
	srv, _, _ := newTestServer(t, func(cfg *Config) {
		cfg.Gate = gate.NewGate(2, 1)
	})

	first := httptest.NewRecorder()
	srv.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/v1/scans",
		strings.NewReader(`{"domain": "one.example"}`)))
	if first.Code != http.StatusAccepted {
		t.Fatalf("Expected first scan accepted, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	srv.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/v1/scans",
		strings.NewReader(`{"domain": "two.example"}`)))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("Expected a Retry-After header on the 429")
	}
}

func TestStartScanServesCachedAggregate(t *testing.T) {
	cache := gateTestCache(t)
	srv, _, _ := newTestServer(t, func(cfg *Config) {
		cfg.Cache = cache
	})
	cache.Set("example.com", &scan.Aggregate{Domain: "example.com", Timestamp: time.Now(), Probes: []scan.Result{}, Issues: []string{}})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scans",
		strings.NewReader(`{"domain": "example.com"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for cached scan, got %d", rec.Code)
	}
	resp := decodeBody[cachedScanResponse](t, rec)
	if !resp.Cached || resp.Aggregate == nil {
		t.Errorf("Expected a cached aggregate, got %+v", resp)
	}

	// An explicit refresh bypasses the cache and starts a new job.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scans",
		strings.NewReader(`{"domain": "example.com", "refresh": true}`)))
	if rec.Code != http.StatusAccepted {
		t.Errorf("Expected 202 for refresh, got %d", rec.Code)
	}
}

func TestScanByIDNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scans/scan_missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestScanStream(t *testing.T) {
	srv, manager, _ := newTestServer(t, nil)

	job, err := manager.Start("example.com")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForJob(t, manager, job.ID)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scans/"+job.ID+"/stream", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %s", got)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: scan") {
		t.Errorf("Expected an SSE scan event, got %q", body)
	}
	if !strings.Contains(body, `"status":"done"`) {
		t.Errorf("Expected the terminal snapshot in the stream, got %q", body)
	}
}

func TestScanStreamUnknownJob(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scans/scan_missing/stream", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestDomainEndpoint(t *testing.T) {
	srv, _, st := newTestServer(t, nil)
	st.Save(&scan.Aggregate{Domain: "example.com", Timestamp: time.Now(), Probes: []scan.Result{}, Issues: []string{"one finding"}})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/domains/example.com", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	agg := decodeBody[scan.Aggregate](t, rec)
	if agg.Domain != "example.com" || len(agg.Issues) != 1 {
		t.Errorf("Expected the stored aggregate, got %+v", agg)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/domains/missing.example", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing domain, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/domains/bad%2Fdomain", nil))
	if rec.Code != http.StatusBadRequest && rec.Code != http.StatusNotFound {
		t.Errorf("Expected rejection of a bad domain, got %d", rec.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, func(cfg *Config) {
		cfg.AuthToken = "sesame"
	})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/probes", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/probes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with a wrong token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/probes", nil)
	req.Header.Set("Authorization", "Bearer sesame")
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with the right token, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/probes", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestPerClientRateLimit(t *testing.T) {
	srv, _, _ := newTestServer(t, func(cfg *Config) {
		cfg.RateLimit = 1
		cfg.RateBurst = 1
	})

	first := httptest.NewRecorder()
	srv.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("Expected first request through, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	srv.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 for the second request, got %d", second.Code)
	}
}

func TestCORS(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/probes", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard origin by default, got %q", got)
	}

	restricted, _, _ := newTestServer(t, func(cfg *Config) {
		cfg.CORSOrigins = []string{"https://allowed.example"}
	})

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/api/v1/probes", nil)
	req.Header.Set("Origin", "https://evil.example")
	restricted.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no CORS header for a disallowed origin, got %q", got)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/api/v1/probes", nil)
	req.Header.Set("Origin", "https://allowed.example")
	restricted.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://allowed.example" {
		t.Errorf("Expected the allowed origin echoed, got %q", got)
	}
}

func TestWriteErrorSanitizesInternal(t *testing.T) {
	s := &Server{cfg: Config{Logger: zaptest.NewLogger(t)}}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/probes", nil)
	s.writeError(rec, req, http.StatusInternalServerError, errors.New("database exploded at /var/lib/secret"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Errorf("Expected internal details to be sanitized, got %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "internal server error") {
		t.Errorf("Expected generic message, got %s", rec.Body.String())
	}
}

func TestWriteErrorKeepsClientMessage(t *testing.T) {
	s := &Server{}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/probes", nil)
	s.writeError(rec, req, http.StatusBadRequest, errors.New("domain is required"))

	if !strings.Contains(rec.Body.String(), "domain is required") {
		t.Errorf("Expected client error message kept, got %s", rec.Body.String())
	}
}

// Package api exposes scans over HTTP: a small JSON API for starting scans,
// polling their jobs, streaming progress and fetching stored aggregates.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/domainposture/posture-cli/internal/api/middleware"
	"github.com/domainposture/posture-cli/internal/gate"
	"github.com/domainposture/posture-cli/internal/scan"
	"github.com/domainposture/posture-cli/internal/store"
)

const maxRequestBody = 1 << 20 // 1MB

// AggregateStore is the slice of the store the API needs: reading stored
// aggregates for the domains endpoint and persisting finished scans.
type AggregateStore interface {
	Load(domain string) (*scan.Aggregate, error)
	Save(agg *scan.Aggregate) error
}

// Config wires the server's collaborators. Scans is required; everything
// else degrades gracefully when absent (no gate means no rate limiting, no
// cache means every scan runs fresh, no token means no auth).
type Config struct {
	Scans       *ScanManager
	Definitions []scan.Definition
	Store       AggregateStore
	Gate        *gate.Gate
	Cache       *gate.Cache
	AuthToken   string
	Logger      *zap.Logger
	CORSOrigins []string // allowed CORS origins; empty allows all
	RateLimit   int      // requests per second per client IP; 0 disables
	RateBurst   int
}

// Server is an http.Handler serving the scan API.
type Server struct {
	cfg      Config
	mux      *http.ServeMux
	handler  http.Handler
	limiters *clientLimiters
}

// NewServer builds the routing table and middleware chain once.
func NewServer(cfg Config) *Server {
	srv := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		limiters: newClientLimiters(),
	}
	srv.routes()
	srv.handler = middleware.RequestID(srv.withLogging(srv.withRateLimit(srv.withCORS(srv.mux))))
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// healthz stays unauthenticated so load balancers can reach it.
	s.mux.Handle("/healthz", http.HandlerFunc(s.handleHealthz))
	s.mux.Handle("/api/v1/probes", s.withAuth(http.HandlerFunc(s.handleProbes)))
	s.mux.Handle("/api/v1/scans", s.withAuth(http.HandlerFunc(s.handleScans)))
	s.mux.Handle("/api/v1/scans/", s.withAuth(http.HandlerFunc(s.handleScanByID)))
	s.mux.Handle("/api/v1/domains/", s.withAuth(http.HandlerFunc(s.handleDomain)))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// probeInfo is the wire form of a probe definition.
type probeInfo struct {
	ID          string           `json:"id"`
	Label       string           `json:"label"`
	Description string           `json:"description"`
	Timeout     string           `json:"timeout,omitempty"`
	DataSource  *scan.DataSource `json:"data_source,omitempty"`
}

func (s *Server) handleProbes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	infos := make([]probeInfo, 0, len(s.cfg.Definitions))
	for _, def := range s.cfg.Definitions {
		info := probeInfo{
			ID:          def.ID,
			Label:       def.Label,
			Description: def.Description,
			DataSource:  def.DataSource,
		}
		if def.Timeout > 0 {
			info.Timeout = def.Timeout.String()
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, infos)
}

type scanRequest struct {
	Domain  string `json:"domain"`
	Refresh bool   `json:"refresh,omitempty"`
}

type cachedScanResponse struct {
	Cached    bool            `json:"cached"`
	Aggregate *scan.Aggregate `json:"aggregate"`
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := 25
		if q := r.URL.Query().Get("limit"); q != "" {
			if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		writeJSON(w, http.StatusOK, s.cfg.Scans.List(limit))

	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		var req scanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		domain, err := scan.SanitizeDomain(req.Domain)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}

		// The gate guards scan capacity before anything else happens.
		if s.cfg.Gate != nil {
			if decision := s.cfg.Gate.CheckRateLimit(); !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds()))
				s.writeError(w, r, http.StatusTooManyRequests, errors.New("scan rate limit exceeded"))
				return
			}
		}

		if !req.Refresh && s.cfg.Cache != nil {
			if agg, ok := s.cfg.Cache.Get(domain); ok {
				writeJSON(w, http.StatusOK, cachedScanResponse{Cached: true, Aggregate: agg})
				return
			}
		}

		job, err := s.cfg.Scans.Start(domain)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusAccepted, job)

	default:
		s.methodNotAllowed(w, r)
	}
}

func (s *Server) handleScanByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/scans/")
	if id, ok := strings.CutSuffix(rest, "/stream"); ok {
		s.streamScan(w, r, id)
		return
	}
	if rest == "" {
		s.writeError(w, r, http.StatusNotFound, errors.New("scan ID required"))
		return
	}
	job := s.cfg.Scans.Get(rest)
	if job == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("scan not found"))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// streamScan emits server-sent events for one job: the current state
// immediately, then every update until the job settles.
func (s *Server) streamScan(w http.ResponseWriter, r *http.Request, id string) {
	job := s.cfg.Scans.Get(id)
	if job == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("scan not found"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, unsubscribe := s.cfg.Scans.Subscribe()
	defer unsubscribe()

	// Send what we already know so late subscribers get a frame at once.
	if !s.writeEvent(w, flusher, *job) {
		return
	}
	if job.terminal() {
		return
	}

	ctx := r.Context()
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.ID != id {
				continue
			}
			if !s.writeEvent(w, flusher, update) {
				return
			}
			if update.terminal() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) writeEvent(w http.ResponseWriter, flusher http.Flusher, job ScanJob) bool {
	payload, err := json.Marshal(job)
	if err != nil {
		s.logger().Error("failed to marshal scan job", zap.Error(err))
		return false
	}
	for _, chunk := range [][]byte{[]byte("event: scan\ndata: "), payload, []byte("\n\n")} {
		if _, err := w.Write(chunk); err != nil {
			return false
		}
	}
	flusher.Flush()
	return true
}

func (s *Server) handleDomain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Store == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("no store configured"))
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/domains/")
	domain, err := scan.SanitizeDomain(raw)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	agg, err := s.cfg.Store.Load(domain)
	if err != nil {
		if errors.Is(err, store.ErrAggregateNotFound) {
			s.writeError(w, r, http.StatusNotFound, err)
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ip := clientIP(r)
		if !s.limiters.get(ip, s.cfg.RateLimit, s.cfg.RateBurst).Allow() {
			s.requestLogger(r).Warn("rate limit exceeded", zap.String("client_ip", ip))
			s.writeError(w, r, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first hop of X-Forwarded-For when a proxy added it,
// falling back to the connection's remote address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowOrigin := "*"
		if len(s.cfg.CORSOrigins) > 0 {
			allowOrigin = ""
			for _, allowed := range s.cfg.CORSOrigins {
				if allowed == origin {
					allowOrigin = origin
					break
				}
			}
		}
		if allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)

		s.logger().Info("http request",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", lrw.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.Int64("bytes", lrw.bytesWritten))
	})
}

// withAuth enforces bearer-token auth with a constant-time comparison. An
// empty configured token disables auth entirely.
func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			s.writeError(w, r, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

// loggingResponseWriter captures the status code and bytes written for the
// access log.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesWritten += int64(n)
	return n, err
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError returns a JSON error body. 5xx details are logged server-side
// and replaced with a generic message so internals never leak to clients.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		s.requestLogger(r).Error("internal server error",
			zap.Error(err),
			zap.Int("status", status))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (s *Server) logger() *zap.Logger {
	if s.cfg.Logger == nil {
		return zap.NewNop()
	}
	return s.cfg.Logger
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return s.logger().With(
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path))
}

// clientLimiters keeps one token bucket per client IP, dropping buckets that
// have been idle for a while.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters() *clientLimiters {
	c := &clientLimiters{limiters: make(map[string]*clientLimiter)}
	go c.cleanupLoop()
	return c
}

func (c *clientLimiters) get(ip string, rps, burst int) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.limiters[ip]
	if !ok {
		if burst <= 0 {
			burst = rps
		}
		entry = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		c.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (c *clientLimiters) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		for ip, entry := range c.limiters {
			if time.Since(entry.lastSeen) > 5*time.Minute {
				delete(c.limiters, ip)
			}
		}
		c.mu.Unlock()
	}
}

package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"bursar/internal/backend"
	applog "bursar/internal/log"
	"bursar/internal/services"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// generateRequestID returns an id correlating a request's log lines.
// Falls back to a timestamp when the random source is unavailable.
func generateRequestID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(b[:])
}

// Server exposes the fee engine over a JSON API. Reconciliation responses
// are computed fresh on every request and never cached.
type Server struct {
	http.Server
	store       backend.Store
	engine      *services.ReconciliationEngine
	collection  *services.CollectionService
	rateLimiter *rateLimiter
	structured  *applog.StructuredLogger

	shutdownOnce sync.Once
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

// startCleanup runs periodic cleanup to remove stale client entries
func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// NewServer configures routes and returns a ready-to-run http.Server.
func NewServer(addr string, store backend.Store, engine *services.ReconciliationEngine, collection *services.CollectionService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:       store,
		engine:      engine,
		collection:  collection,
		rateLimiter: newRateLimiter(),
		structured:  applog.NewStructuredLogger(applog.New(applog.DefaultConfig())),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("GET /fee-settings", s.withSecurityHeaders(s.handleListFeeSettings))
	mux.HandleFunc("POST /fee-settings", s.withSecurityHeaders(s.handleCreateFeeSetting))
	mux.HandleFunc("GET /fee-settings/{feeID}", s.withSecurityHeaders(s.handleGetFeeSetting))
	mux.HandleFunc("PUT /fee-settings/{feeID}", s.withSecurityHeaders(s.handleUpdateFeeSetting))
	mux.HandleFunc("DELETE /fee-settings/{feeID}", s.withSecurityHeaders(s.handleDeleteFeeSetting))

	mux.HandleFunc("GET /custom-student-fees", s.withSecurityHeaders(s.handleListOverrides))
	mux.HandleFunc("POST /custom-student-fees", s.withSecurityHeaders(s.handlePutOverride))
	mux.HandleFunc("PUT /custom-student-fees/{studentID}/{feeID}", s.withSecurityHeaders(s.handleUpdateOverride))
	mux.HandleFunc("DELETE /custom-student-fees/{studentID}/{feeID}", s.withSecurityHeaders(s.handleDeactivateOverride))

	mux.HandleFunc("PUT /students/{studentID}", s.withSecurityHeaders(s.handlePutStudent))
	mux.HandleFunc("GET /students/{studentID}", s.withSecurityHeaders(s.handleGetStudent))
	mux.HandleFunc("GET /students/{studentID}/transactions", s.withSecurityHeaders(s.handleListTransactions))

	mux.HandleFunc("GET /fee-analysis/{studentID}", s.withSecurityHeaders(s.handleFeeAnalysis))

	mux.HandleFunc("POST /fee-collections", s.withSecurityHeaders(s.handleCommit))
	mux.HandleFunc("POST /fee-collections/{txID}/reverse", s.withSecurityHeaders(s.handleReverse))

	return s
}

// withSecurityHeaders adds security headers, rate limiting, and request logging to responses
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		// Generate request ID for tracing
		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		s.structured.LogHTTPStart(ctx, r, clientIP)

		// Apply rate limiting to mutating requests
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// Reconciliation is recomputed per request; nothing here is cacheable.
		w.Header().Set("Cache-Control", "no-store")

		// Create a custom response writer to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		s.structured.LogHTTPEnd(ctx, r, rw.statusCode, duration.Milliseconds(), clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Package httpapi serves the tool catalog over HTTP next to the Prometheus
// metrics and a health probe.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/sdkbridge/internal/observability"
	"github.com/harun/sdkbridge/internal/tracing"
	"github.com/harun/sdkbridge/pkg/bridge"
	"github.com/harun/sdkbridge/pkg/toolexecutor"
	"github.com/harun/sdkbridge/pkg/toolgen"
)

// ConfirmHeader acknowledges tools flagged as requiring confirmation
const ConfirmHeader = "X-Sdkbridge-Confirm"

// ToolService lists and executes tools
type ToolService interface {
	ListTools(policy *toolexecutor.ToolPolicy) []toolgen.Descriptor
	Execute(ctx context.Context, toolName string, params map[string]any, execCtx *toolexecutor.ExecutionContext) bridge.Result
}

// Options configures a Server
type Options struct {
	Addr string
	// Secret is the HMAC key tool calls must be signed with; unsigned calls
	// are accepted when empty
	Secret             string
	RateLimitPerMinute int
	Policy             *toolexecutor.ToolPolicy
	// Confirmed pre-approves tools flagged for confirmation
	Confirmed bool
	MaxBody   int64
}

// Server is the HTTP transport
type Server struct {
	opts        Options
	tools       ToolService
	server      *http.Server
	rateLimiter *RateLimiter
	logger      zerolog.Logger
	startTime   time.Time

	shuttingDown atomic.Bool
	inFlight     sync.WaitGroup
}

// NewServer creates a server. With a nil ToolService only /health and
// /metrics are served.
func NewServer(opts Options, tools ToolService, logger zerolog.Logger) *Server {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:8765"
	}
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = 60
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = 1 << 20
	}

	s := &Server{
		opts:        opts,
		tools:       tools,
		rateLimiter: NewRateLimiter(opts.RateLimitPerMinute),
		logger:      logger.With().Str("component", "httpapi").Logger(),
		startTime:   time.Now(),
	}
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	observability.EnsureRegistered()
	return s
}

// Handler returns the routing handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", observability.MetricsHandler())
	if s.tools != nil {
		mux.HandleFunc("GET /tools", s.handleList)
		mux.HandleFunc("POST /tools/{name}", s.handleCall)
	}
	return mux
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.opts.Addr).
		Bool("tools", s.tools != nil).
		Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop waits for in-flight calls until ctx is done, then shuts down
func (s *Server) Stop(ctx context.Context) error {
	s.shuttingDown.Store(true)
	s.logger.Info().Msg("Shutting down HTTP server")

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown deadline reached, forcing close")
	}

	s.rateLimiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	}
	if s.tools != nil {
		resp["tools"] = len(s.tools.ListTools(s.opts.Policy))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tools.ListTools(s.opts.Policy))
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	s.inFlight.Add(1)
	defer s.inFlight.Done()

	name := r.PathValue("name")
	ip := clientIP(r)

	if !s.rateLimiter.CheckLimit(ip) {
		retryAfter := s.rateLimiter.RetryAfter(ip)
		s.logger.Warn().
			Str("ip", ip).
			Str("tool", name).
			Int("retry_after", retryAfter).
			Msg("Rate limit exceeded")

		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if s.opts.Secret != "" {
		sig := r.Header.Get(SignatureHeader)
		if sig == "" || !verifySignature(body, sig, s.opts.Secret) {
			s.logger.Warn().Str("ip", ip).Str("tool", name).Msg("Rejected unsigned or mis-signed call")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	args := map[string]any{}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			http.Error(w, "arguments must be a JSON object", http.StatusBadRequest)
			return
		}
	}

	ctx := tracing.NewRequestContext(r.Context())
	execCtx := &toolexecutor.ExecutionContext{
		Caller:     "http:" + ip,
		ToolPolicy: s.opts.Policy,
		Confirmed:  s.opts.Confirmed || r.Header.Get(ConfirmHeader) == "true",
	}

	res := s.tools.Execute(ctx, name, args, execCtx)
	observability.RecordProtocolRequest("http:tools/call", res.OK())

	status := http.StatusOK
	if !res.OK() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// clientIP prefers proxy headers over the socket address
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

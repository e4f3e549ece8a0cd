package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"sketchbridge/internal/core/config"
	"sketchbridge/internal/shared/observability"
	"sketchbridge/internal/shared/util"

	"github.com/google/uuid"
)

const (
	keepAliveInterval = 30 * time.Second
	limiterTTL        = 10 * time.Minute
	maxMessageBytes   = 1 << 20
)

// SSE serves MCP over HTTP: clients hold GET /sse open and POST messages to /message.
type SSE struct {
	address string
	info    ServerInfo
	logger  *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	handler  Handler

	sessions   map[string]*sseSession
	sessionsMu sync.RWMutex

	requestLimiter    *util.LimiterRegistry
	connectionLimiter *util.LimiterRegistry
	limitMu           sync.RWMutex
	limitEnabled      bool

	started   bool
	ready     chan struct{}
	readyOnce sync.Once
}

type sseSession struct {
	id        string
	messages  chan any
	createdAt time.Time
}

func NewSSE(address string, info ServerInfo, cfg config.RateLimit, logger *slog.Logger) (*SSE, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SSE{
		address:  address,
		info:     info,
		logger:   logger,
		sessions: make(map[string]*sseSession),
		ready:    make(chan struct{}),
	}
	s.SetRateLimit(cfg)
	return s, nil
}

// SetRateLimit applies a per-client request budget. Connections get a fifth of it, at least one per second.
func (s *SSE) SetRateLimit(cfg config.RateLimit) {
	s.limitMu.Lock()
	defer s.limitMu.Unlock()

	s.limitEnabled = cfg.RequestsPerSecond > 0
	if !s.limitEnabled {
		return
	}
	connRate := cfg.RequestsPerSecond / 5
	if connRate < 1 {
		connRate = 1
	}
	if s.requestLimiter == nil {
		s.requestLimiter = util.NewLimiterRegistry(cfg.RequestsPerSecond, cfg.Burst, limiterTTL)
		s.connectionLimiter = util.NewLimiterRegistry(connRate, 5, limiterTTL)
		return
	}
	s.requestLimiter.SetRate(cfg.RequestsPerSecond, cfg.Burst)
	s.connectionLimiter.SetRate(connRate, 5)
}

func (s *SSE) allow(reg func() *util.LimiterRegistry, r *http.Request) bool {
	s.limitMu.RLock()
	enabled := s.limitEnabled
	registry := reg()
	s.limitMu.RUnlock()
	if !enabled || registry == nil {
		return true
	}
	return registry.Allow(util.GetClientIP(r))
}

// Addr returns the bound address once Start is listening.
func (s *SSE) Addr() string {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *SSE) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Start serves until ctx is canceled. An SSE transport can be started once.
func (s *SSE) Start(ctx context.Context, handler Handler) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("mcp sse transport on %s already started", s.address)
	}
	s.started = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/sse", s.handleSSE)
	mux.HandleFunc("/message", s.handleMessage)

	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		s.markReady()
		return fmt.Errorf("listen on %s: %w", s.address, err)
	}

	s.mu.Lock()
	s.handler = handler
	s.listener = ln
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.server
	s.mu.Unlock()
	s.markReady()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("mcp sse server listening", "address", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

func (s *SSE) Stop() error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()

	s.limitMu.RLock()
	if s.requestLimiter != nil {
		s.requestLimiter.Close()
		s.connectionLimiter.Close()
	}
	s.limitMu.RUnlock()

	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func (s *SSE) handleSSE(w http.ResponseWriter, r *http.Request) {
	if !s.allow(func() *util.LimiterRegistry { return s.connectionLimiter }, r) {
		observability.RateLimitedTotal.WithLabelValues("sse_connect").Inc()
		w.Header().Set("Retry-After", "60")
		http.Error(w, "Too many connections", http.StatusTooManyRequests)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	session := &sseSession{
		id:        uuid.New().String(),
		messages:  make(chan any, 32),
		createdAt: time.Now(),
	}

	s.sessionsMu.Lock()
	s.sessions[session.id] = session
	s.sessionsMu.Unlock()

	defer func() {
		s.sessionsMu.Lock()
		delete(s.sessions, session.id)
		s.sessionsMu.Unlock()
	}()

	fmt.Fprintf(w, "event: endpoint\ndata: /message?session_id=%s\n\n", session.id)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case msg := <-session.messages:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Warn("encode sse message", "session", session.id, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ":\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *SSE) handleMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "Missing session_id", http.StatusBadRequest)
		return
	}

	s.sessionsMu.RLock()
	session, ok := s.sessions[sessionID]
	s.sessionsMu.RUnlock()
	if !ok {
		http.Error(w, "Invalid session_id", http.StatusNotFound)
		return
	}

	if !s.allow(func() *util.LimiterRegistry { return s.requestLimiter }, r) {
		observability.RateLimitedTotal.WithLabelValues("sse").Inc()
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var raw map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&raw); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()

	// The reply travels over the session stream, not this response.
	go func() {
		resp := dispatch(context.Background(), handler, s.info, raw)
		if resp == nil {
			return
		}
		select {
		case session.messages <- resp:
		case <-time.After(keepAliveInterval):
			s.logger.Warn("dropping sse reply for stalled session", "session", session.id)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

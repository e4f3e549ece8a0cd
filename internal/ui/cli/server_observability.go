package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"sketchbridge/internal/mcp/contracts"
	"sketchbridge/internal/mcp/tools/system"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ObservabilityServer struct {
	addr    string
	checker system.Checker
	metrics bool
	server  *http.Server
	ln      net.Listener
}

func NewObservabilityServer(addr string, checker system.Checker, metrics bool) *ObservabilityServer {
	return &ObservabilityServer{
		addr:    addr,
		checker: checker,
		metrics: metrics,
	}
}

func (s *ObservabilityServer) handler() http.Handler {
	mux := http.NewServeMux()

	if s.metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status, err := system.HandleHealth(r.Context(), s.checker)
		w.Header().Set("Content-Type", "application/json")
		if err != nil || status.Status != contracts.HealthOK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
	return mux
}

func (s *ObservabilityServer) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.server = &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("observability server starting", "addr", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("observability server failed", "error", err)
		}
	}()

	return nil
}

// Addr is the bound address, useful when the configured port is 0.
func (s *ObservabilityServer) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

func (s *ObservabilityServer) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

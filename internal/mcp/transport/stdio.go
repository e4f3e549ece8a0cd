package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"sketchbridge/internal/core/config"
	"sketchbridge/internal/mcp/contracts"
	"sketchbridge/internal/shared/observability"
	"sketchbridge/internal/shared/util"
)

// Stdio serves newline-delimited JSON on stdin/stdout. Logs must go to stderr.
type Stdio struct {
	info   ServerInfo
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	limiter *util.Limiter
}

type StdioOption func(*Stdio)

// WithStreams replaces stdin/stdout, mainly for tests.
func WithStreams(in io.Reader, out io.Writer) StdioOption {
	return func(s *Stdio) {
		s.in = in
		s.out = out
	}
}

func WithStdioLogger(logger *slog.Logger) StdioOption {
	return func(s *Stdio) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewStdio(info ServerInfo, cfg config.RateLimit, opts ...StdioOption) (*Stdio, error) {
	s := &Stdio{
		info:   info,
		in:     os.Stdin,
		out:    os.Stdout,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.SetRateLimit(cfg)
	return s, nil
}

// SetRateLimit applies a new request budget. Zero requests per second disables limiting.
func (s *Stdio) SetRateLimit(cfg config.RateLimit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case cfg.RequestsPerSecond <= 0:
		s.limiter = nil
	case s.limiter == nil:
		s.limiter = util.NewLimiter(cfg.RequestsPerSecond, cfg.Burst)
	default:
		s.limiter.SetRate(cfg.RequestsPerSecond, cfg.Burst)
	}
}

func (s *Stdio) allow() bool {
	s.mu.Lock()
	limiter := s.limiter
	s.mu.Unlock()
	return limiter == nil || limiter.Allow(1)
}

func (s *Stdio) Start(ctx context.Context, handler Handler) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	err := s.serve(ctx, handler)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

func (s *Stdio) Stop() error {
	return nil
}

func (s *Stdio) serve(ctx context.Context, handler Handler) error {
	if handler == nil {
		return contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: "stdio handler is required"}
	}

	decoder := json.NewDecoder(bufio.NewReader(s.in))
	writer := bufio.NewWriter(s.out)
	encoder := json.NewEncoder(writer)

	write := func(v any) error {
		if err := encoder.Encode(v); err != nil {
			return err
		}
		return writer.Flush()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var raw map[string]any
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if !s.allow() {
			observability.RateLimitedTotal.WithLabelValues("stdio").Inc()
			s.logger.Warn("stdio request rate limited")
			if err := write(rateLimitedResponse(raw)); err != nil {
				return err
			}
			continue
		}

		resp := dispatch(ctx, handler, s.info, raw)
		if resp == nil {
			continue
		}
		if err := write(resp); err != nil {
			return err
		}
	}
}

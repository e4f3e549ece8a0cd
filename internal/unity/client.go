// Package unity talks to the editor-side command listener.
//
// Each command is one TCP round trip: the bridge writes {"type":…,"params":…} and reads back
// a single JSON object, {"status":"success","result":…} or {"status":"error","error":…}.
package unity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"sketchbridge/internal/core/errors"
	"sketchbridge/internal/core/ports"
	"sketchbridge/internal/shared/observability"
	"sketchbridge/internal/shared/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	CommandPing              = "ping"
	CommandImportSketchfab   = "IMPORT_SKETCHFAB_MODEL"
	CommandCheckImportStatus = "CHECK_SKETCHFAB_IMPORT_STATUS"
)

const (
	defaultAddress        = "127.0.0.1:6400"
	defaultDialTimeout    = 2 * time.Second
	defaultCommandTimeout = 10 * time.Second
	maxResponseBytes      = 8 << 20
)

type ClientConfig struct {
	Address           string
	DialTimeout       time.Duration
	CommandTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
}

type Client struct {
	cfg     ClientConfig
	dialer  net.Dialer
	limiter *util.Limiter
}

var _ ports.EditorLink = (*Client)(nil)

func NewClient(cfg ClientConfig) *Client {
	if strings.TrimSpace(cfg.Address) == "" {
		cfg.Address = defaultAddress
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	c := &Client{
		cfg:    cfg,
		dialer: net.Dialer{Timeout: cfg.DialTimeout},
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = util.NewLimiter(cfg.RequestsPerSecond, burst)
	}
	return c
}

func (c *Client) Address() string {
	return c.cfg.Address
}

type command struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

type response struct {
	Status  string         `json:"status"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Message string         `json:"message,omitempty"`
}

// SendCommand sends one command and returns the result object of a successful response.
func (c *Client) SendCommand(ctx context.Context, commandType string, params map[string]any) (map[string]any, error) {
	ctx, span := observability.Tracer.Start(ctx, "unity.SendCommand")
	defer span.End()
	span.SetAttributes(attribute.String("unity.command", commandType))

	start := time.Now()
	result, err := c.send(ctx, commandType, params)
	observability.UnityCommandDuration.WithLabelValues(commandType).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.UnityCommandErrorsTotal.WithLabelValues(commandType).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.AddContext(err, errors.CtxCommand, commandType)
	}
	return result, nil
}

func (c *Client) send(ctx context.Context, commandType string, params map[string]any) (map[string]any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, 1); err != nil {
			return nil, errors.Wrap(err, errors.CodeDelegatedFailure, "unity command rate limit")
		}
	}
	if params == nil {
		params = map[string]any{}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCollaboratorUnavailable, fmt.Sprintf("connect to Unity at %s", c.cfg.Address))
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(command{Type: commandType, Params: params}); err != nil {
		return nil, errors.Wrap(err, errors.CodeDelegatedFailure, "write unity command")
	}

	var resp response
	dec := json.NewDecoder(io.LimitReader(conn, maxResponseBytes))
	if err := dec.Decode(&resp); err != nil {
		return nil, errors.Wrap(err, errors.CodeDelegatedFailure, "read unity response")
	}

	if !strings.EqualFold(resp.Status, "success") {
		msg := util.FirstNonEmpty(resp.Error, resp.Message, "unknown error")
		return nil, errors.New(errors.CodeDelegatedFailure, msg)
	}
	if resp.Result == nil {
		resp.Result = map[string]any{}
	}
	return resp.Result, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.SendCommand(ctx, CommandPing, nil)
	return err
}

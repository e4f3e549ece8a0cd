package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"sketchbridge/internal/core/config"
	mcpruntime "sketchbridge/internal/mcp/runtime"
	"sketchbridge/internal/shared/observability"
	"sketchbridge/internal/shared/version"
)

const shutdownTimeout = 5 * time.Second

func Run(args []string) int {
	opts, err := parseOptions(args)
	if err != nil {
		return 2
	}

	if opts.version {
		fmt.Printf("sketchbridge v%s (%s)\n", version.Version, version.Commit)
		return 0
	}

	// stdout carries the MCP protocol; logs always go to stderr.
	configureLogging(os.Stderr, opts.verbose)

	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	paths, err := config.ResolvePaths(cfg, configBaseDir(cfgPath))
	if err != nil {
		slog.Error("failed to resolve runtime paths", "error", err)
		return 1
	}

	if opts.imports > 0 || opts.ui {
		return runStoreCommand(opts, cfg, paths)
	}

	if err := runServer(cfg, cfgPath, paths); err != nil {
		slog.Error("failed to run MCP server", "error", err)
		return 1
	}
	return 0
}

func runStoreCommand(opts cliOptions, cfg *config.Config, paths config.ResolvedPaths) int {
	if opts.ui && !cfg.DB.Enabled {
		fmt.Fprintln(os.Stderr, "-ui reads the sqlite task store; enable db in the config")
		return 1
	}
	store, closer, _, err := openStore(cfg, paths)
	if err != nil {
		slog.Error("failed to open task store", "error", err)
		return 1
	}
	defer closer.Close()

	if opts.ui {
		limit := cfg.MCP.MaxResponseItems
		if opts.imports > 0 {
			limit = opts.imports
		}
		if err := runUI(store, limit); err != nil {
			slog.Error("failed to run UI", "error", err)
			return 1
		}
		return 0
	}

	if err := printImports(context.Background(), os.Stdout, store, opts.imports); err != nil {
		slog.Error("failed to list imports", "error", err)
		return 1
	}
	return 0
}

func runServer(cfg *config.Config, cfgPath string, paths config.ResolvedPaths) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	if cfg.Observability.Enabled && cfg.Observability.EnableTracing {
		shutdown, err := observability.InitTracing(ctx, cfg.MCP.ServerName, version.Version, cfg.Observability.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	b, err := buildBridge(cfg, paths, logger)
	if err != nil {
		return err
	}

	server, err := mcpruntime.Build(cfg, mcpruntime.Dependencies{
		Tools:    b.tools,
		Defaults: b.importer,
		Logger:   logger,
		Closers:  []io.Closer{b},
	})
	if err != nil {
		_ = b.Close()
		return fmt.Errorf("build MCP runtime: %w", err)
	}
	defer server.Stop()

	if cfg.Observability.Enabled {
		obs := NewObservabilityServer(net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Observability.Port)), b.tools, cfg.Observability.EnableMetrics)
		if err := obs.Start(ctx); err != nil {
			return fmt.Errorf("start observability server: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = obs.Stop(sctx)
		}()
	}

	if cfgPath != "" {
		watcher := config.NewWatcher(cfgPath, server.ApplyConfig, logger)
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config hot reload disabled", "path", cfgPath, "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	logger.Info("sketchbridge starting",
		"version", version.Version,
		"transport", cfg.MCP.Transport,
		"unity", cfg.Unity.Enabled,
		"store", b.storeKind,
	)

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadConfig returns the config and the path it came from. A missing default
// config file falls back to built-in defaults with an empty path.
func loadConfig(path string) (*config.Config, string, error) {
	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case path == defaultConfigPath && errors.Is(err, os.ErrNotExist):
		slog.Info("no config file found; using defaults", "path", path)
		cfg = config.DefaultConfig()
		path = ""
	default:
		return nil, "", err
	}

	config.ApplyEnvOverrides(cfg)
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, "", fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return cfg, path, nil
}

func configBaseDir(cfgPath string) string {
	if cfgPath != "" {
		if abs, err := filepath.Abs(filepath.Dir(cfgPath)); err == nil {
			return abs
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

func configureLogging(w io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

package cli

import (
	"fmt"
	"io"
	"log/slog"

	"sketchbridge/internal/core/config"
	"sketchbridge/internal/core/ports"
	"sketchbridge/internal/data/tasks"
	"sketchbridge/internal/engine/scene"
	"sketchbridge/internal/engine/sketchfab"
	"sketchbridge/internal/mcp/adapters"
	"sketchbridge/internal/unity"
)

// bridge is the assembled import stack behind the MCP runtime.
type bridge struct {
	store     ports.TaskStore
	storeKind string
	scene     *scene.Scene
	client    *unity.Client
	manager   *unity.Manager
	importer  *sketchfab.Adapter
	tools     *adapters.Adapter
	// closers run in order on shutdown: the manager first so its final snapshots reach the store.
	closers []io.Closer
}

func openStore(cfg *config.Config, paths config.ResolvedPaths) (ports.TaskStore, io.Closer, string, error) {
	if !cfg.DB.Enabled {
		store := tasks.NewMemoryStore()
		return store, store, "memory", nil
	}
	store, err := tasks.Open(paths.DBPath, cfg.DB.BusyTimeout)
	if err != nil {
		return nil, nil, "", fmt.Errorf("open task store: %w", err)
	}
	return store, store, "sqlite", nil
}

func buildBridge(cfg *config.Config, paths config.ResolvedPaths, logger *slog.Logger) (*bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, storeCloser, kind, err := openStore(cfg, paths)
	if err != nil {
		return nil, err
	}

	b := &bridge{
		store:     store,
		storeKind: kind,
		scene:     scene.New(),
	}

	var tracker adapters.ActiveTracker
	var link ports.EditorLink
	if cfg.Unity.Enabled {
		b.client = unity.NewClient(unity.ClientConfig{
			Address:           cfg.Unity.Address,
			DialTimeout:       cfg.Unity.DialTimeout,
			CommandTimeout:    cfg.Unity.CommandTimeout,
			RequestsPerSecond: cfg.Unity.RequestsPerSecond,
			Burst:             cfg.Unity.Burst,
		})
		manager, err := unity.NewManager(b.client, store, unity.ManagerConfig{
			PollInterval:  cfg.Unity.PollInterval,
			MaxPolls:      cfg.Unity.MaxPolls,
			ImportTimeout: cfg.Unity.ImportTimeout,
		}, logger)
		if err != nil {
			_ = storeCloser.Close()
			return nil, fmt.Errorf("create sketchfab manager: %w", err)
		}
		b.manager = manager
		b.scene.Register(manager)
		b.closers = append(b.closers, manager)
		tracker = manager
		link = b.client
	} else {
		logger.Warn("unity bridge disabled; imports will report that no SketchfabManager is in the scene")
	}
	b.closers = append(b.closers, storeCloser)

	importer, err := sketchfab.NewAdapter(b.scene, sketchfab.WithLogger(logger), sketchfab.WithDefaultBounds(cfg.DefaultBounds()))
	if err != nil {
		b.Close()
		return nil, err
	}
	b.importer = importer

	opts := adapters.Options{
		Importer:  importer,
		Tasks:     store,
		Scene:     b.scene,
		Tracker:   tracker,
		StoreKind: kind,
	}
	if link != nil {
		opts.Link = link
		opts.UnityAddress = b.client.Address()
	}
	tools, err := adapters.NewAdapter(opts)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.tools = tools
	return b, nil
}

func (b *bridge) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

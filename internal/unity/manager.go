package unity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"sketchbridge/internal/core/errors"
	"sketchbridge/internal/core/ports"
	"sketchbridge/internal/engine/geometry"
	"sketchbridge/internal/engine/task"
	"sketchbridge/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ManagerConfig struct {
	PollInterval  time.Duration
	MaxPolls      int
	ImportTimeout time.Duration
}

// Manager is the SketchfabManager backed by a live editor. SearchModels hands the import to
// a goroutine that drives the editor and records progress on the returned task.
type Manager struct {
	link   ports.EditorLink
	store  ports.TaskStore
	logger *slog.Logger
	cfg    ManagerConfig

	mu            sync.Mutex
	searchKeyword string
	targetBounds  geometry.Bounds
	active        map[string]*task.Task
	closed        bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ ports.SketchfabManager = (*Manager)(nil)

func NewManager(link ports.EditorLink, store ports.TaskStore, cfg ManagerConfig, logger *slog.Logger) (*Manager, error) {
	if link == nil {
		return nil, fmt.Errorf("editor link is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 10
	}
	if cfg.ImportTimeout <= 0 {
		cfg.ImportTimeout = time.Duration(cfg.MaxPolls+1)*cfg.PollInterval + 30*time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		link:         link,
		store:        store,
		logger:       logger,
		cfg:          cfg,
		targetBounds: geometry.DefaultBounds(),
		active:       make(map[string]*task.Task),
		baseCtx:      ctx,
		cancel:       cancel,
	}, nil
}

func (m *Manager) SetSearchKeyword(keyword string) {
	m.mu.Lock()
	m.searchKeyword = keyword
	m.mu.Unlock()
}

func (m *Manager) SetTargetBounds(bounds geometry.Bounds) {
	m.mu.Lock()
	m.targetBounds = bounds
	m.mu.Unlock()
}

func (m *Manager) SearchKeyword() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchKeyword
}

func (m *Manager) TargetBounds() geometry.Bounds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.targetBounds
}

// Active returns the in-flight task with id, if any.
func (m *Manager) Active(id string) (*task.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.active[id]
	return t, ok
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// SearchModels starts the import and returns its task without waiting for the editor.
func (m *Manager) SearchModels(ctx context.Context, keyword string, bounds geometry.Bounds) (*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(keyword) == "" {
		return nil, errors.New(errors.CodeMissingParameter, "search keyword is empty")
	}

	t := task.New(keyword, bounds)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.New(errors.CodeCollaboratorUnavailable, "SketchfabManager is shut down")
	}
	m.active[t.ID()] = t
	m.wg.Add(1)
	m.mu.Unlock()

	m.persist(ctx, t)
	observability.ImportTasksActive.Inc()

	link := trace.LinkFromContext(ctx)
	go m.run(t, link)
	return t, nil
}

// Close cancels in-flight imports and waits for their goroutines.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	return nil
}

func (m *Manager) run(t *task.Task, link trace.Link) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(m.baseCtx, m.cfg.ImportTimeout)
	defer cancel()
	ctx, span := observability.Tracer.Start(ctx, "unity.Manager.import", trace.WithLinks(link))
	defer span.End()
	span.SetAttributes(attribute.String("task.id", t.ID()))

	if err := m.importModel(ctx, t); err != nil {
		span.RecordError(err)
		if t.Fail(err) {
			m.logger.Warn("sketchfab import failed", "task_id", t.ID(), "keyword", t.Snapshot().Keyword, "error", err)
		}
	}

	snap := t.Snapshot()
	m.persist(context.Background(), t)

	m.mu.Lock()
	delete(m.active, t.ID())
	m.mu.Unlock()

	observability.ImportTasksActive.Dec()
	observability.ImportTasksFinishedTotal.WithLabelValues(string(snap.State)).Inc()
	m.logger.Info("sketchfab import finished", "task_id", snap.ID, "state", snap.State, "model", snap.ModelName)
}

func (m *Manager) importModel(ctx context.Context, t *task.Task) error {
	snap := t.Snapshot()
	t.Advance(task.StateSearching, 0, "searching Sketchfab")
	m.persist(ctx, t)

	fields := snap.Bounds.Fields()
	bounds := make(map[string]any, len(fields))
	for k, v := range fields {
		bounds[k] = v
	}
	result, err := m.link.SendCommand(ctx, CommandImportSketchfab, map[string]any{
		"keyword": snap.Keyword,
		"bounds":  bounds,
	})
	if err != nil {
		return err
	}

	remoteID := stringField(result, "taskId")
	if remoteID == "" {
		msg := stringField(result, "message")
		if msg == "" {
			msg = "import started in the editor without a task id; progress is not tracked"
		}
		t.Complete("", msg)
		return nil
	}
	t.SetRemoteID(remoteID)
	t.Advance(task.StateDownloading, 0, "import started")
	m.persist(ctx, t)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for poll := 0; poll < m.cfg.MaxPolls; poll++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		status, err := m.link.SendCommand(ctx, CommandCheckImportStatus, map[string]any{"taskId": remoteID})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Debug("import status check failed", "task_id", t.ID(), "remote_task_id", remoteID, "error", err)
			continue
		}

		if msg := stringField(status, "error"); msg != "" {
			return errors.New(errors.CodeDelegatedFailure, msg)
		}
		if completed, _ := status["completed"].(bool); completed {
			name := ""
			if info, ok := status["modelInfo"].(map[string]any); ok {
				name = stringField(info, "name")
			}
			t.Complete(name, "model imported")
			return nil
		}

		progress := 0
		if p, ok := status["progress"].(float64); ok {
			progress = int(p)
		}
		t.Advance(task.StateDownloading, progress, "")
		m.persist(ctx, t)
		m.logger.Debug("import progress", "task_id", t.ID(), "progress", progress)
	}

	return errors.New(errors.CodeDelegatedFailure, fmt.Sprintf("import did not finish after %d status checks; check the editor for its state", m.cfg.MaxPolls))
}

func (m *Manager) persist(ctx context.Context, t *task.Task) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, t.Snapshot()); err != nil {
		observability.TaskStoreErrorsTotal.Inc()
		m.logger.Warn("persist import task", "task_id", t.ID(), "error", err)
	}
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return strings.TrimSpace(v)
}

package contracts

import (
	"encoding/json"
	"time"
)

const (
	ToolNameSketchbridge = "sketchbridge"
	ContractVersion      = "v1"
)

type OperationID string

const (
	OperationImportSketchfab OperationID = "model.import_sketchfab"
	OperationImportStatus    OperationID = "model.import_status"
	OperationListImports     OperationID = "model.list_imports"
	OperationSystemHealth    OperationID = "system.health"
)

// Operations lists every operation in the order tools/list advertises them.
var Operations = []OperationID{
	OperationImportSketchfab,
	OperationImportStatus,
	OperationListImports,
	OperationSystemHealth,
}

type SketchbridgeToolInput struct {
	Operation OperationID     `json:"operation"`
	Params    json.RawMessage `json:"params,omitempty"`
}

type OperationDescriptor struct {
	ID          OperationID    `json:"id"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ImportSketchfabInput is passed through untyped; the command adapter owns its validation.
type ImportSketchfabInput map[string]any

type ImportSketchfabOutput struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	TaskID  string `json:"task_id,omitempty"`
}

type BoundsView struct {
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
	CenterZ float64 `json:"centerZ"`
	SizeX   float64 `json:"sizeX"`
	SizeY   float64 `json:"sizeY"`
	SizeZ   float64 `json:"sizeZ"`
}

type ImportTask struct {
	TaskID       string     `json:"task_id"`
	Keyword      string     `json:"keyword"`
	Bounds       BoundsView `json:"bounds"`
	State        string     `json:"state"`
	Progress     int        `json:"progress"`
	ModelName    string     `json:"model_name,omitempty"`
	RemoteTaskID string     `json:"remote_task_id,omitempty"`
	Message      string     `json:"message,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type ImportStatusInput struct {
	TaskID string `json:"task_id"`
}

type ImportStatusOutput struct {
	Task   ImportTask `json:"task"`
	Active bool       `json:"active"`
}

type ListImportsInput struct {
	Limit int `json:"limit,omitempty"`
}

type ListImportsOutput struct {
	Count   int          `json:"count"`
	Imports []ImportTask `json:"imports"`
}

type SystemHealthInput struct{}

type UnityHealth struct {
	Enabled   bool   `json:"enabled"`
	Address   string `json:"address,omitempty"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

type StoreHealth struct {
	Kind  string `json:"kind"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type SystemHealthOutput struct {
	Status        string      `json:"status"`
	Version       string      `json:"version"`
	Unity         UnityHealth `json:"unity"`
	SceneManagers int         `json:"scene_managers"`
	ActiveImports int         `json:"active_imports"`
	Store         StoreHealth `json:"store"`
	HeapAllocMB   uint64      `json:"heap_alloc_mb"`
}

const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

type ToolError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e ToolError) Error() string {
	return e.Message
}

const (
	ErrorInvalidArgument = "invalid_argument"
	ErrorNotFound        = "not_found"
	ErrorInternal        = "internal"
	ErrorUnavailable     = "unavailable"
	ErrorPermission      = "permission_denied"
)

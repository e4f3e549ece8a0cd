package validate

import (
	"encoding/json"
	"fmt"
	"strings"

	"sketchbridge/internal/mcp/contracts"
	"sketchbridge/internal/shared/util"
)

const (
	maxLimitValue   = 5000
	maxTaskIDLength = 128
)

// Command names accepted in place of operation IDs, as sent by editor-side clients.
var operationAliases = map[string]contracts.OperationID{
	"import_sketchfab_model":        contracts.OperationImportSketchfab,
	"check_sketchfab_import_status": contracts.OperationImportStatus,
	"list_sketchfab_imports":        contracts.OperationListImports,
	"health":                        contracts.OperationSystemHealth,
	"ping":                          contracts.OperationSystemHealth,
}

func ValidateToolArgs(tool string, raw map[string]any) (any, error) {
	_, input, err := ParseToolArgs(tool, raw)
	return input, err
}

// NormalizeOperation maps an operation ID or alias to its canonical ID.
// Unknown values are returned lower-cased so callers can report them.
func NormalizeOperation(raw string) contracts.OperationID {
	value := strings.ToLower(strings.TrimSpace(raw))
	if id, ok := operationAliases[value]; ok {
		return id
	}
	return contracts.OperationID(value)
}

func ParseToolArgs(tool string, raw map[string]any) (contracts.OperationID, any, error) {
	if strings.TrimSpace(tool) == "" {
		return "", nil, contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: "tool name is required"}
	}
	if tool != contracts.ToolNameSketchbridge {
		return "", nil, contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: fmt.Sprintf("unsupported tool: %s", tool)}
	}
	if raw == nil {
		raw = map[string]any{}
	}

	operationRaw, ok := raw["operation"].(string)
	if !ok || strings.TrimSpace(operationRaw) == "" {
		return "", nil, contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: "operation is required"}
	}
	operation := NormalizeOperation(operationRaw)

	params := map[string]any{}
	if rawParams, ok := raw["params"]; ok && rawParams != nil {
		typed, ok := rawParams.(map[string]any)
		if !ok {
			return "", nil, contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: "params must be an object"}
		}
		params = typed
	}

	switch operation {
	case contracts.OperationImportSketchfab:
		return operation, contracts.ImportSketchfabInput(params), nil
	case contracts.OperationImportStatus:
		if _, ok := params["task_id"]; !ok {
			if legacy, ok := params["taskId"]; ok {
				params = map[string]any{"task_id": legacy}
			}
		}
		var input contracts.ImportStatusInput
		if err := decodeParams(params, &input); err != nil {
			return "", nil, err
		}
		input.TaskID = strings.TrimSpace(input.TaskID)
		if input.TaskID == "" {
			return "", nil, contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: "task_id is required"}
		}
		if len(input.TaskID) > maxTaskIDLength {
			return "", nil, contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: "task_id is too long"}
		}
		return operation, input, nil
	case contracts.OperationListImports:
		var input contracts.ListImportsInput
		if err := decodeParams(params, &input); err != nil {
			return "", nil, err
		}
		if input.Limit < 0 || input.Limit > maxLimitValue {
			return "", nil, invalidLimitError("limit")
		}
		return operation, input, nil
	case contracts.OperationSystemHealth:
		return operation, contracts.SystemHealthInput{}, nil
	default:
		return "", nil, contracts.ToolError{
			Code:    contracts.ErrorInvalidArgument,
			Message: fmt.Sprintf("unsupported operation: %s", operation),
			Details: map[string]any{"aliases": util.SortedStringKeys(operationAliases)},
		}
	}
}

// CommandEnvelope converts a {"type": ..., "params": ...} command into tool args.
// ok is false when raw is not shaped like a command.
func CommandEnvelope(raw map[string]any) (args map[string]any, ok bool) {
	commandType, isString := raw["type"].(string)
	if !isString || strings.TrimSpace(commandType) == "" {
		return nil, false
	}
	args = map[string]any{"operation": commandType}
	if params, present := raw["params"]; present {
		args["params"] = params
	}
	return args, true
}

func decodeParams(params map[string]any, out any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: "invalid params encoding"}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: "invalid params", Details: map[string]any{"error": err.Error()}}
	}
	return nil
}

func invalidLimitError(field string) error {
	return contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: fmt.Sprintf("%s is out of range", field)}
}

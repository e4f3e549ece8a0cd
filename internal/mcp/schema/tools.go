package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"sketchbridge/internal/engine/geometry"
	"sketchbridge/internal/mcp/contracts"

	"github.com/getkin/kin-openapi/openapi3"
)

type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
	Version     string         `json:"version"`
}

var summaries = map[contracts.OperationID]string{
	contracts.OperationImportSketchfab: "Search Sketchfab for keyword and import the best match into bounds in the open Unity scene.",
	contracts.OperationImportStatus:    "Report the state of an import started by model.import_sketchfab.",
	contracts.OperationListImports:     "List recent imports, newest first.",
	contracts.OperationSystemHealth:    "Report Unity reachability, scene managers and store availability.",
}

func boundsSchema() *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	s.Description = "Axis-aligned target volume. Omit to use the configured default (origin, size 2)."
	for _, name := range geometry.FieldNames {
		s = s.WithProperty(name, openapi3.NewFloat64Schema())
	}
	return s.WithRequired(geometry.FieldNames)
}

// ParamsSchema returns the params schema of one operation.
// The import schema documents the fields without requiring them; the command adapter reports missing ones.
func ParamsSchema(op contracts.OperationID) (*openapi3.Schema, error) {
	switch op {
	case contracts.OperationImportSketchfab:
		keyword := openapi3.NewStringSchema()
		keyword.Description = "Search term, e.g. \"castle\"."
		return openapi3.NewObjectSchema().
			WithProperty("keyword", keyword).
			WithProperty("bounds", boundsSchema()), nil
	case contracts.OperationImportStatus:
		return openapi3.NewObjectSchema().
			WithProperty("task_id", openapi3.NewStringSchema().WithMinLength(1)).
			WithRequired([]string{"task_id"}), nil
	case contracts.OperationListImports:
		return openapi3.NewObjectSchema().
			WithProperty("limit", openapi3.NewIntegerSchema().WithMin(0).WithMax(5000)), nil
	case contracts.OperationSystemHealth:
		return openapi3.NewObjectSchema(), nil
	default:
		return nil, fmt.Errorf("no schema for operation %s", op)
	}
}

func toolSchema() *openapi3.Schema {
	ops := make([]any, 0, len(contracts.Operations))
	for _, op := range contracts.Operations {
		ops = append(ops, string(op))
	}
	operation := openapi3.NewStringSchema().WithEnum(ops...)
	operation.Description = "Operation identifier (e.g., model.import_sketchfab)."

	params := openapi3.NewObjectSchema().WithAnyAdditionalProperties()
	params.Description = "Operation parameters."

	return openapi3.NewObjectSchema().
		WithProperty("operation", operation).
		WithProperty("params", params).
		WithRequired([]string{"operation"})
}

func describe() string {
	var b strings.Builder
	b.WriteString("Single entry tool for Sketchfab imports into a running Unity editor. Operations:")
	for _, op := range contracts.Operations {
		fmt.Fprintf(&b, "\n- %s: %s", op, summaries[op])
	}
	return b.String()
}

// BuildOperationDescriptors documents every operation with its params schema.
func BuildOperationDescriptors() []contracts.OperationDescriptor {
	out := make([]contracts.OperationDescriptor, 0, len(contracts.Operations))
	for _, op := range contracts.Operations {
		s, err := ParamsSchema(op)
		if err != nil {
			continue
		}
		out = append(out, contracts.OperationDescriptor{
			ID:          op,
			Summary:     summaries[op],
			InputSchema: toMap(s),
		})
	}
	return out
}

func BuildToolDefinitions(toolName string) []ToolDefinition {
	if strings.TrimSpace(toolName) == "" {
		toolName = contracts.ToolNameSketchbridge
	}
	return []ToolDefinition{
		{
			Name:        toolName,
			Description: describe(),
			Version:     contracts.ContractVersion,
			InputSchema: toMap(toolSchema()),
		},
	}
}

// ValidateArgs checks raw tool arguments against the tool schema and the operation's params schema.
func ValidateArgs(raw map[string]any) error {
	if err := toolSchema().VisitJSON(raw); err != nil {
		return err
	}
	op, _ := raw["operation"].(string)
	s, err := ParamsSchema(contracts.OperationID(op))
	if err != nil {
		return err
	}
	params, _ := raw["params"].(map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	return s.VisitJSON(params)
}

func toMap(s *openapi3.Schema) map[string]any {
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}

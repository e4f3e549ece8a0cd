package sketchfab

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"sketchbridge/internal/core/errors"
	"sketchbridge/internal/engine/geometry"
)

const (
	paramKeyword = "keyword"
	paramBounds  = "bounds"
)

// Request is the decoded params object of an import command.
type Request map[string]any

func extractKeyword(req Request) (string, error) {
	raw, ok := req[paramKeyword]
	if !ok || raw == nil {
		return "", missingKeyword("Parameter 'keyword' is required.")
	}
	keyword, ok := raw.(string)
	if !ok {
		return "", missingKeyword(fmt.Sprintf("Parameter 'keyword' must be a string, got %T.", raw))
	}
	if strings.TrimSpace(keyword) == "" {
		return "", missingKeyword("Parameter 'keyword' must not be empty.")
	}
	return keyword, nil
}

func missingKeyword(msg string) error {
	return errors.AddContext(errors.New(errors.CodeMissingParameter, msg), errors.CtxParameter, paramKeyword)
}

// extractBounds returns fallback when the request carries no bounds.
func extractBounds(req Request, fallback geometry.Bounds) (geometry.Bounds, error) {
	raw, ok := req[paramBounds]
	if !ok || raw == nil {
		return fallback, nil
	}

	var fields map[string]any
	switch typed := raw.(type) {
	case map[string]any:
		fields = typed
	case Request:
		fields = typed
	case map[string]float64:
		fields = make(map[string]any, len(typed))
		for k, v := range typed {
			fields[k] = v
		}
	default:
		return geometry.Bounds{}, malformedBounds(paramBounds, fmt.Sprintf("Parameter 'bounds' must be an object, got %T.", raw))
	}

	values := make(map[string]float64, len(geometry.FieldNames))
	for _, name := range geometry.FieldNames {
		v, ok := fields[name]
		if !ok || v == nil {
			return geometry.Bounds{}, malformedBounds(name, fmt.Sprintf("Parameter 'bounds.%s' is required.", name))
		}
		f, ok := toFloat(v)
		if !ok {
			return geometry.Bounds{}, malformedBounds(name, fmt.Sprintf("Parameter 'bounds.%s' must be a number.", name))
		}
		values[name] = f
	}
	return geometry.BoundsFromFields(values)
}

func malformedBounds(field, msg string) error {
	return errors.AddContext(errors.New(errors.CodeMalformedParameter, msg), errors.CtxParameter, field)
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

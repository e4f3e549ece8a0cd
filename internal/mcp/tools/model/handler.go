package model

import (
	"context"

	"sketchbridge/internal/mcp/contracts"
)

type Service interface {
	ImportSketchfabModel(ctx context.Context, in contracts.ImportSketchfabInput) contracts.ImportSketchfabOutput
	ImportStatus(ctx context.Context, taskID string) (contracts.ImportStatusOutput, error)
	ListImports(ctx context.Context, limit int) (contracts.ListImportsOutput, error)
}

// HandleImport never fails at the tool level; problems come back as an error-status result.
func HandleImport(ctx context.Context, svc Service, in contracts.ImportSketchfabInput) (contracts.ImportSketchfabOutput, error) {
	return svc.ImportSketchfabModel(ctx, in), nil
}

func HandleStatus(ctx context.Context, svc Service, in contracts.ImportStatusInput) (contracts.ImportStatusOutput, error) {
	return svc.ImportStatus(ctx, in.TaskID)
}

func HandleList(ctx context.Context, svc Service, in contracts.ListImportsInput, maxItems int) (contracts.ListImportsOutput, error) {
	limit := in.Limit
	if limit <= 0 || (maxItems > 0 && limit > maxItems) {
		limit = maxItems
	}
	return svc.ListImports(ctx, limit)
}

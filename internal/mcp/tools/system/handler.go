package system

import (
	"context"

	"sketchbridge/internal/mcp/contracts"
)

type Checker interface {
	Health(ctx context.Context) contracts.SystemHealthOutput
}

func HandleHealth(ctx context.Context, c Checker) (contracts.SystemHealthOutput, error) {
	if err := ctx.Err(); err != nil {
		return contracts.SystemHealthOutput{}, err
	}
	return c.Health(ctx), nil
}

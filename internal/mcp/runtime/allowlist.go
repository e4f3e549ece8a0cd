package runtime

import (
	"strings"

	"sketchbridge/internal/core/config"
	"sketchbridge/internal/mcp/contracts"
	"sketchbridge/internal/mcp/validate"

	"github.com/gobwas/glob"
)

// OperationAllowlist gates operations by exact ID, alias or glob pattern ("model.*").
// An empty allowlist allows everything.
type OperationAllowlist struct {
	allowAll bool
	exact    map[contracts.OperationID]bool
	patterns []glob.Glob
}

func BuildOperationAllowlist(cfg *config.Config) OperationAllowlist {
	if cfg == nil || len(cfg.MCP.OperationAllowlist) == 0 {
		return OperationAllowlist{allowAll: true}
	}

	out := OperationAllowlist{exact: make(map[contracts.OperationID]bool)}
	for _, entry := range cfg.MCP.OperationAllowlist {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if strings.ContainsAny(entry, "*?[{") {
			g, err := glob.Compile(entry, '.')
			if err != nil {
				continue
			}
			out.patterns = append(out.patterns, g)
			continue
		}
		out.exact[validate.NormalizeOperation(entry)] = true
	}
	return out
}

func (o OperationAllowlist) Allows(id contracts.OperationID) bool {
	if o.allowAll {
		return true
	}
	if o.exact[id] {
		return true
	}
	for _, g := range o.patterns {
		if g.Match(string(id)) {
			return true
		}
	}
	return false
}

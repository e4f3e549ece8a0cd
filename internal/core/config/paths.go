package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

type ResolvedPaths struct {
	StateDir    string
	DatabaseDir string
	DBPath      string
}

// ResolvePaths anchors the relative directories in cfg at base, usually the config file's directory.
func ResolvePaths(cfg *Config, base string) (ResolvedPaths, error) {
	if strings.TrimSpace(base) == "" {
		return ResolvedPaths{}, fmt.Errorf("base directory must not be empty")
	}
	stateDir := ResolveRelative(base, cfg.Paths.StateDir)
	databaseDir := ResolveRelative(base, cfg.Paths.DatabaseDir)

	dbPath := strings.TrimSpace(cfg.DB.Path)
	if filepath.IsAbs(dbPath) {
		dbPath = filepath.Clean(dbPath)
	} else {
		dbPath = filepath.Join(databaseDir, dbPath)
	}

	return ResolvedPaths{
		StateDir:    filepath.Clean(stateDir),
		DatabaseDir: filepath.Clean(databaseDir),
		DBPath:      filepath.Clean(dbPath),
	}, nil
}

func ResolveRelative(base, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(value) {
		return filepath.Clean(value)
	}
	return filepath.Clean(filepath.Join(base, value))
}

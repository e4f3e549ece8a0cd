// Package version carries build metadata stamped with -ldflags.
package version

var (
	Version = "0.1.0-dev"
	Commit  = "none"
)

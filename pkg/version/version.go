// Package version holds build metadata injected with -ldflags -X.
package version

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

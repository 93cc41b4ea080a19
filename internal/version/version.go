// Package version holds build information injected with -ldflags -X.
package version

var (
	GitTag    = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

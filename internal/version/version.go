// Package version holds the build metadata stamped into release binaries
// via -ldflags -X.
package version

// Defaults apply to plain `go build`; release builds override all three.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

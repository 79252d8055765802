// Package version exposes build-time version information.
package version

import (
	"fmt"
	"runtime"
)

// Populated via -ldflags at build time.
var (
	Version   = "v0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String returns a single-line human readable version description.
func String() string {
	return fmt.Sprintf("t2guard %s (commit %s, built %s, %s/%s)",
		Version, GitCommit, BuildDate, runtime.GOOS, runtime.GOARCH)
}

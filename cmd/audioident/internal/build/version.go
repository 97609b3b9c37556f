// Package build carries version information stamped at link time.
package build

import (
	"fmt"
	"runtime"
)

// Set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns a one-line human-readable version description.
func String() string {
	return fmt.Sprintf("audioident %s (%s) built %s %s/%s",
		Version, Commit, Date, runtime.GOOS, runtime.GOARCH)
}

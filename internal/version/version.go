// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/mesh-provider/internal/version.Version=0.3.0 \
//	                   -X github.com/rickgao/mesh-provider/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/mesh-provider/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/meshwatch
package version

import (
	"fmt"
	"runtime"
)

// Build-time variables (set via ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns a formatted version string including the Go toolchain.
func String() string {
	return fmt.Sprintf("meshwatch %s (%s) built %s with %s", Version, Commit, BuildTime, runtime.Version())
}

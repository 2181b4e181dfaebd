// Package version holds build metadata stamped in by the linker.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/arbiter/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/arbiter/internal/version.Commit=abc123
//	  -X github.com/soyeahso/arbiter/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns the line printed by `arbiter version`.
func Info() string {
	return fmt.Sprintf("arbiter %s (commit: %s, built: %s, %s/%s)",
		Version, short(Commit), Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent identifies this build to peers: the IRC CTCP VERSION reply and
// the User-Agent of outgoing HTTP probes.
func UserAgent() string {
	if Commit == "unknown" {
		return "arbiter/" + Version
	}
	return fmt.Sprintf("arbiter/%s (%s)", Version, short(Commit))
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}

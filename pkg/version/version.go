// Package version holds build information injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time, e.g.
//
//	go build -ldflags "-X github.com/NERVsystems/osmxml/pkg/version.BuildVersion=v0.2.0"
var (
	BuildVersion = "dev"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

// Info returns build information as labels
func Info() map[string]string {
	return map[string]string{
		"version":    BuildVersion,
		"commit":     BuildCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
	}
}

// String returns a human readable version line
func String() string {
	return fmt.Sprintf("osmxml %s (commit %s, built %s, %s)", BuildVersion, BuildCommit, BuildDate, runtime.Version())
}

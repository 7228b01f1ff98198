// Package version holds build metadata injected via ldflags:
//
//	-X github.com/kailas-cloud/recall/internal/version.Version=v1.2.0
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders "<version> (<commit>, <date>)" for --version output.
func String() string {
	return fmt.Sprintf("%s (%s, %s)", Version, Commit, Date)
}

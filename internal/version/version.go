// Package version carries the build identity of the itemmatch binary.
package version

import "fmt"

// Set with -ldflags "-X github.com/retreivo/itemmatch/internal/version.Version=...".
//
//nolint:revive // ldflags targets.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the build identity for logs and the health endpoint.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, Commit, Date)
}

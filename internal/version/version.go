// Package version carries build-time identification, set via ldflags:
// go build -ldflags "-X git.home.luguber.info/inful/shipwright/internal/version.Version=v0.3.0".
package version

import "fmt"

var (
	Version   = "dev"
	GitCommit = "unknown"
)

// String renders the version the way the CLI reports it.
func String() string {
	return fmt.Sprintf("shipwright %s (%s)", Version, GitCommit)
}

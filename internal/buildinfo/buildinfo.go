// Package buildinfo exposes compile-time metadata shared by the CLI and
// the wire-log dumps.
package buildinfo

import "fmt"

// Overridden via ldflags on release builds; the defaults identify local
// development builds.
var (
	// Version is the semantic version or git describe output of the binary.
	Version = "dev"

	// Commit is the git commit SHA baked into the binary.
	Commit = "none"

	// BuildDate records when the binary was built in UTC.
	BuildDate = "unknown"
)

// Summary renders the one-line build identification printed by -v and
// logged at startup.
func Summary() string {
	return fmt.Sprintf("restreamctl %s (commit %s, built %s)", Version, Commit, BuildDate)
}

package buildinfo

import "fmt"

// Set at build time with -ldflags "-X .../buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return fmt.Sprintf("bathymesh %s (commit=%s, date=%s)", Version, Commit, Date)
}

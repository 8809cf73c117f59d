// Package version reports the build version of the bridge binaries.
package version

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Version and Commit are normally stamped at link time:
//
//	go build -ldflags="-X github.com/muurk/orvibo-bridge/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/orvibo-bridge/internal/version.Commit=abc123"
//
// Unstamped builds derive them from the VCS data embedded by the Go
// toolchain, and fall back to a timestamped "dev" version.
var (
	Version = ""
	Commit  = ""
)

// shortCommitLen is the length of the abbreviated revision hash
const shortCommitLen = 7

func init() {
	if Version == "" || Commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			fromSettings(info.Settings)
		}
	}
	if Version == "" {
		Version = "dev-" + time.Now().Format("20060102-150405")
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// fromSettings fills unset fields from vcs.* build settings
func fromSettings(settings []debug.BuildSetting) {
	vcs := make(map[string]string, len(settings))
	for _, s := range settings {
		vcs[s.Key] = s.Value
	}

	if rev := vcs["vcs.revision"]; Commit == "" && rev != "" {
		if len(rev) > shortCommitLen {
			rev = rev[:shortCommitLen]
		}
		if vcs["vcs.modified"] == "true" {
			rev += "-dirty"
		}
		Commit = rev
	}

	// Build info carries no tags, only the commit time
	if Version == "" {
		if t, err := time.Parse(time.RFC3339, vcs["vcs.time"]); err == nil {
			Version = "dev-" + t.Format("20060102")
		}
	}
}

// Full returns the version with its commit
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// UserAgent identifies orvibo-ctl requests to the control API
func UserAgent() string {
	return "orvibo-ctl/" + Version
}

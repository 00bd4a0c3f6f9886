// Package version reports the tlsecho build version.
package version

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Version and Commit can be set at build time:
//
//	go build -ldflags="-X github.com/muurk/tlsecho/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/tlsecho/internal/version.Commit=abc1234"
//
// Unset values are filled from VCS build info, then from a dev timestamp.
var (
	Version = ""
	Commit  = ""
)

func init() {
	if Version == "" || Commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			Version, Commit = fromSettings(info.Settings, Version, Commit)
		}
	}
	if Version == "" {
		Version = "dev-" + time.Now().Format("20060102-150405")
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// fromSettings fills empty version and commit values from VCS build settings.
func fromSettings(settings []debug.BuildSetting, version, commit string) (string, string) {
	vcs := make(map[string]string, len(settings))
	for _, s := range settings {
		vcs[s.Key] = s.Value
	}

	if rev := vcs["vcs.revision"]; commit == "" && rev != "" {
		if len(rev) > 7 {
			rev = rev[:7]
		}
		commit = rev
		if vcs["vcs.modified"] == "true" {
			commit += "-dirty"
		}
	}

	// Build info carries no tags, so the commit date stands in for a version
	if version == "" {
		if t, err := time.Parse(time.RFC3339, vcs["vcs.time"]); err == nil {
			version = "dev-" + t.UTC().Format("20060102")
		}
	}
	return version, commit
}

// Full returns the version with its commit, e.g. "v1.2.3 (commit: abc1234)".
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

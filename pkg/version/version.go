// Package version derives the build identity stamped on logs, the
// health endpoint, and NATS connection names.
package version

import "runtime/debug"

// AppName prefixes every version string.
const AppName = "feedeater"

// commitOverride takes the commit from -ldflags for container builds
// that compile outside a git checkout.
var commitOverride string

// GitCommit is the short commit hash of this build, or "dev" when no
// VCS metadata is available (go test, source tarballs).
var GitCommit = resolveCommit()

// Full returns "feedeater/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}

func resolveCommit() string {
	if commitOverride != "" {
		return shorten(commitOverride)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return shorten(s.Value)
			}
		}
	}
	return "dev"
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

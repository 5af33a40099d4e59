// Package version reports the build identity of the hallsweep binary.
package version

import (
	"runtime/debug"
	"sync"
)

// Set at build time with -ldflags "-X github.com/Sumatoshi-tech/hallsweep/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var initOnce sync.Once

// InitBinaryVersion fills Commit and Date from the module build info when
// they were not set with -ldflags.
func InitBinaryVersion() {
	initOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}

		apply(info)
	})
}

func apply(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == "none" {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == "unknown" {
				Date = setting.Value
			}
		}
	}
}

// String formats the version line printed by "hallsweep version".
func String() string {
	return "hallsweep " + Version + " (commit: " + Commit + ", built: " + Date + ")"
}

// Package buildinfo reports what binary is running.
//
// Release builds stamp the variables with -ldflags:
//
//	-X 'github.com/m3rciful/tutorbot/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/tutorbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/tutorbot/core/buildinfo.Date=2025-08-30T12:00:00Z'
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = "local"
	Date    = ""
)

// Info is the resolved build description.
type Info struct {
	Version string
	Commit  string
	Date    string
}

// Get returns the stamped values, falling back to the VCS data the Go
// toolchain embeds when the binary was built without ldflags.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "local" && len(s.Value) >= 7 {
				info.Commit = s.Value[:7]
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		}
	}
	return info
}

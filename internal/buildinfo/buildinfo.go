// Package buildinfo reports the version stamped into the mousedyn binary.
package buildinfo

import "runtime/debug"

// version is set at link time: -ldflags "-X .../internal/buildinfo.version=v1.2.3".
var version = "dev"

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Version returns the linked version, else the module version, else "dev"
// suffixed with the short VCS revision when the build recorded one.
func Version() string {
	if version != "dev" {
		return version
	}
	info, ok := readBuildInfo()
	if !ok {
		return version
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	out := version + "+" + revision
	if dirty {
		out += ".dirty"
	}
	return out
}

// Package version reports build information for the salesviz binaries.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Set via -ldflags "-X salesviz/internal/version.Version=..." at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Info contains version and build information
type Info struct {
	Version     string `json:"version"`
	BuildTime   string `json:"build_time"`
	GoVersion   string `json:"go_version"`
	VCSRevision string `json:"vcs_revision,omitempty"`
	VCSTime     string `json:"vcs_time,omitempty"`
	VCSModified bool   `json:"vcs_modified"`
}

// Get returns the current version and build information
func Get() Info {
	info := Info{
		Version:   Version,
		BuildTime: BuildTime,
	}

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = buildInfo.GoVersion
	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			info.VCSRevision = setting.Value
		case "vcs.time":
			info.VCSTime = setting.Value
		case "vcs.modified":
			info.VCSModified = setting.Value == "true"
		}
	}
	return info
}

// Short is the version plus an abbreviated commit, as shown in page footers.
func (i Info) Short() string {
	if i.VCSRevision == "" {
		return i.Version
	}
	rev := i.VCSRevision
	if len(rev) > 8 {
		rev = rev[:8]
	}
	if i.VCSModified {
		rev += "+"
	}
	return i.Version + " (" + rev + ")"
}

// String returns a human-readable version string
func (i Info) String() string {
	parts := []string{"salesviz " + i.Version}
	if i.BuildTime != "unknown" {
		parts = append(parts, fmt.Sprintf("built %s", i.BuildTime))
	}
	if i.GoVersion != "" {
		parts = append(parts, i.GoVersion)
	}
	if i.VCSRevision != "" {
		parts = append(parts, "commit "+i.Short())
	}
	return strings.Join(parts, ", ")
}

// Warning describes a suspicious build, or returns "".
func (i Info) Warning() string {
	if i.VCSModified {
		return "binary built from modified source tree"
	}
	if i.VCSRevision == "" && i.Version == "dev" {
		return "no version control information available (development build)"
	}
	return ""
}

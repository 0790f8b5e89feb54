// Package version reports which shipyardd or shipyardctl build is running.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Release defaults reported by binaries built without linker flags
const (
	DefaultVersion        = "dev"
	DefaultReleaseName    = "Dockside"
	DefaultReleaseVersion = "0.0.0"
	DefaultBuildDate      = "unknown"
	DefaultGitCommit      = "unknown"
)

// Info describes one shipyard binary. Version is the display string, for
// example "Dockside (2026.10) - v0.4.0-a1c2e3f".
type Info struct {
	Binary         string
	Version        string
	ReleaseName    string
	ReleaseVersion string
	BuildDate      string
	GitCommit      string
}

// Linker holds the string variables a binary exposes to -ldflags "-X".
// Empty values leave the defaults in place.
type Linker struct {
	Version        string
	ReleaseName    string
	ReleaseVersion string
	BuildDate      string
	GitCommit      string
}

// New returns the defaults for a binary built without linker flags
func New() *Info {
	return &Info{
		Binary:         "shipyard",
		Version:        DefaultVersion,
		ReleaseName:    DefaultReleaseName,
		ReleaseVersion: DefaultReleaseVersion,
		BuildDate:      DefaultBuildDate,
		GitCommit:      DefaultGitCommit,
	}
}

// For names the binary and applies its linker variables
func (i *Info) For(binary string, l Linker) *Info {
	if b := strings.TrimSpace(binary); b != "" {
		i.Binary = b
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&i.Version, l.Version)
	set(&i.ReleaseName, l.ReleaseName)
	set(&i.ReleaseVersion, l.ReleaseVersion)
	set(&i.BuildDate, l.BuildDate)
	set(&i.GitCommit, l.GitCommit)
	return i
}

// GoVersion returns the Go runtime version
func GoVersion() string {
	return runtime.Version()
}

func (i *Info) String() string {
	return i.Version
}

// Full renders the block printed by the version commands
func (i *Info) Full() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", i.Binary, i.Version)
	fmt.Fprintf(&b, "  release:    %s (%s)\n", i.ReleaseName, i.ReleaseVersion)
	fmt.Fprintf(&b, "  commit:     %s\n", i.GitCommit)
	fmt.Fprintf(&b, "  build date: %s\n", i.BuildDate)
	fmt.Fprintf(&b, "  go:         %s", GoVersion())
	return b.String()
}

// Map returns the fields keyed like the /v1/version response
func (i *Info) Map() map[string]string {
	return map[string]string{
		"binary":          i.Binary,
		"version":         i.Version,
		"release_name":    i.ReleaseName,
		"release_version": i.ReleaseVersion,
		"build_date":      i.BuildDate,
		"git_commit":      i.GitCommit,
		"go_version":      GoVersion(),
	}
}

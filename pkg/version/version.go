package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Version represents the current version of cpuview.
type Version struct {
	Major    string
	Minor    string
	Patch    string
	Metadata string
	Build    string
}

// CPUViewVersion is the current version of cpuview.
var CPUViewVersion = Version{
	Major: "0", Minor: "3", Patch: "0", Metadata: "",
	Build: "$Id$",
}

// Short returns the dotted version number, as reported by the offline
// backend's /version endpoint.
func (v Version) Short() string {
	s := fmt.Sprintf("%s.%s.%s", v.Major, v.Minor, v.Patch)
	if v.Metadata != "" {
		s += "-" + v.Metadata
	}
	return s
}

func (v Version) String() string {
	v.Build = build(v.Build)
	return fmt.Sprintf("Version: %s\nBuild: %s", v.Short(), v.Build)
}

// build returns b, or the VCS revision recorded by the go tool when b is
// the unexpanded ident placeholder.
func build(b string) string {
	if !strings.HasPrefix(b, "$Id$") {
		return b
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}
	return "unknown"
}

// BuildInfo lists the Go version, the main module and every dependency
// the binary was built with.
func BuildInfo() string {
	var b strings.Builder
	fmt.Fprintln(&b, runtime.Version())
	info, ok := debug.ReadBuildInfo()
	if !ok {
		b.WriteString("not built in module mode\n")
		return b.String()
	}
	fmt.Fprintf(&b, " mod\t%s\t%s\t%s\n", info.Main.Path, info.Main.Version, info.Main.Sum)
	for _, dep := range info.Deps {
		fmt.Fprintf(&b, " dep\t%s\t%s\t%s", dep.Path, dep.Version, dep.Sum)
		if dep.Replace != nil {
			fmt.Fprintf(&b, "\t=> %s\t%s", dep.Replace.Path, dep.Replace.Version)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

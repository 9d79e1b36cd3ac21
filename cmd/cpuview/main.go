package main

import (
	"github.com/cpuview/cpuview/cmd/cpuview/cmds"
	"github.com/cpuview/cpuview/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.CPUViewVersion.Build = Build
	}
	cmds.New(false).Execute()
}

// Package main is the entry point for the whalesnake CLI.
//
// All commands live in internal/cli. Build-time variables (version, commit,
// date) are injected via ldflags and default to "dev", "none" and
// "unknown" in development builds.
package main

import (
	"github.com/groundeffect/whalesnake/internal/cli"
)

// version, commit, and date are set at build time via
// -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	cli.Execute(cli.NewRootCommand())
}

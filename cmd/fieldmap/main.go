// Package main is the entry point for the fieldmap binary.
package main

import (
	"os"

	"fieldmap/pkg/cli"
)

// Populated at build time through -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	os.Exit(cli.Execute())
}

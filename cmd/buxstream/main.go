// Package main is the entry point for buxstream.
package main

import (
	"os"
)

// Set by the build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCommand(version, commit, date).Execute(); err != nil {
		os.Exit(1)
	}
}

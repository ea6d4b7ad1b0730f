// Package main is the entry point for the pixscout CLI.
package main

import (
	"os"

	"github.com/jmylchreest/pixscout/cmd/pixscout/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

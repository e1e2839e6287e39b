// Package main is the entry point for the hlsgate application.
package main

import (
	"os"

	"github.com/jmylchreest/hlsgate/cmd/hlsgate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

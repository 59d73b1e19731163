// Command kgeval validates knowledge-graph embedding checkpoints.
package main

import (
	"os"

	"github.com/turtacn/kgeval/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	// Execute already printed the error.
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

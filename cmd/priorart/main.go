// Command-line client for PriorArt-Intelligence.
package main

import (
	"os"

	"github.com/turtacn/PriorArt-Intelligence/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
	os.Exit(cli.Execute())
}

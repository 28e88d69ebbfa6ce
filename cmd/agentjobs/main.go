package main

import (
	"fmt"
	"os"

	app "github.com/valter-silva-au/agentjobs/internal"
	"github.com/valter-silva-au/agentjobs/internal/cli"
)

// Set by goreleaser ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	a, err := app.NewApp(app.ResolveBasePath(), app.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing agentjobs: %v\n", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error shutting down: %v\n", err)
		}
	}()

	root := a.RootCmd(cli.VersionInfo{Version: version, Commit: commit, Date: date})
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

package main

// ============================================================================
// fedsched entry point
// 1. Build the CLI and run it
// 2. Map the returned error onto the documented exit code
// 3. Report panics instead of leaving a stack trace mid-experiment
// ============================================================================

import (
	"fmt"
	"os"

	"github.com/sonndinh/gedf-vs-fed/internal/cli"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}

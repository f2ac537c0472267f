// ./main.go
package main

import (
	"github.com/slidescope/slidescope/cmd"
)

// main is the entry point for the slidescope CLI.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}

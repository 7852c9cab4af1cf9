// Command biemctl is a command-line driver for the BIEM memory engine.
//
// Usage:
//
//	biemctl [flags] <command> [subcommand] [args]
//
// Commands:
//
//	ingest     - Add a memory node (episodic side, C1-C10)
//	recall     - Query memory nodes by text
//	feedback   - Apply an energy delta to a node
//	event      - Record an explicit causal link between two nodes
//	stats      - Report L1/L2 population for a scope
//	run        - Run the background sweep/reconcile/consolidate loops
//	knowledge  - Structured-fact pipeline (extract, confirm, query; C11-C13)
package main

import (
	"fmt"
	"os"

	"github.com/synapsed/biem/cmd/biemctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

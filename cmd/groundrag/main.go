// Command groundrag is the entry point for the grounded RAG query engine.
// It provides a CLI (via Cobra) for ingesting documents, asking questions,
// and inspecting the query log, plus an HTTP server for programmatic use.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/groundrag/cmd/groundrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

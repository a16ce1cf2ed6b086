// Archgraph - architectural analysis over a symbol dependency graph.
//
// Archgraph loads an indexed snapshot of a repository's symbols and
// relationships and answers questions about cycles, layering, modular
// clustering, blast radius, technical debt and multi-agent partitioning.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/archgraph/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

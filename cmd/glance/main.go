// Package main provides the entry point for the glance indexer CLI.
package main

import (
	"os"

	"github.com/glancesearch/glance/cmd/glance/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

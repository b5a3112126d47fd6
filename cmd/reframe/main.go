// Package main provides the reframe command-line interface.
package main

import (
	"os"

	"github.com/reframe-labs/reframe/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

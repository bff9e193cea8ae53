// Package main provides the defsdb command.
package main

import (
	"os"

	"github.com/leapstack-labs/defsdb/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main provides the CLI entrypoint for distillprep.
package main

import (
	"os"

	"github.com/distill-labs/distillprep/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

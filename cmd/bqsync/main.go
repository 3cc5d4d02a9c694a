// Package main provides the entry point for bqsync.
package main

import (
	"os"

	"github.com/devrev/bqsync/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

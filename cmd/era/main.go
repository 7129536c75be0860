// Package main is the era command line.
package main

import (
	"os"

	"github.com/era-ai/era/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdout, os.Stderr))
}

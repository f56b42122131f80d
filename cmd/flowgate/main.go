// Package main provides the entry point for the flowgate CLI.
package main

import (
	"fmt"
	"os"

	"github.com/ineyio/flowgate/cmd/flowgate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

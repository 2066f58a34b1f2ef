// ABOUTME: Entry point for unisonctl, the command-line controller for a Unison server
package main

import (
	"os"

	"github.com/unison-audio/unison-go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

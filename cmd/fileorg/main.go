// Package main provides the entry point for the fileorg CLI.
package main

import (
	"os"

	"github.com/fileorg/organizer/cmd/fileorg/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

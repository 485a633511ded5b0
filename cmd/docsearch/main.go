// Package main is the docsearch command.
package main

import (
	"os"

	"github.com/Aman-CERP/docsearch/cmd/docsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

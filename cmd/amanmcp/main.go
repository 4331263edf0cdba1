// Package main provides the entry point for the amanmcp CLI.
package main

import (
	"errors"
	"os"

	"github.com/Aman-CERP/ue5query/cmd/amanmcp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var exitErr *cmd.ExitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

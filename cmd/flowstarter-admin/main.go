// ABOUTME: Entry point for flowstarter-admin, the operator CLI over the Flowstarter billing API
// ABOUTME: Commands live in the commands package; errors print in red and exit 1

package main

import (
	"os"

	"github.com/fatih/color"

	"github.com/flowstarter/flowstarter-console/cmd/flowstarter-admin/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

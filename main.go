// The main package for the conductio-api executable.
package main

import (
	"github.com/JakeFAU/conductio-api/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

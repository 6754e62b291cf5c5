// The main package for the agenda executable.
package main

import (
	"github.com/JakeFAU/agenda-cultural-salvador/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

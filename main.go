// The main package for the coursebot executable.
package main

import (
	"github.com/JakeFAU/coursebot/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

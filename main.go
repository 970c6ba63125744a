// The main package for the staleness executable.
package main

import (
	"github.com/stalehq/staleness/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}

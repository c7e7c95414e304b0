// The main package for the catalog executable.
package main

import (
	"github.com/JakeFAU/midcolumbia-catalog/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}

// Command ruleminer extracts business rules from codebases with an LLM and
// writes one markdown report per analysis run.
package main

import (
	"os"
)

// Set via -ldflags at build time
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

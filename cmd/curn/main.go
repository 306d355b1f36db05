// Command curn runs a command inside a minimal Linux container.
//
//	curn --debug --command /bin/bash --mount ../ubuntu-fs --uid 0
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

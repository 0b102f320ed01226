//go:build unix

package main

import (
	"os"
	"syscall"
)

// shutdownSignals includes SIGTERM so containers and process managers stop us cleanly.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

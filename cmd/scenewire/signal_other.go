//go:build !unix

package main

import "os"

// shutdownSignals on non-Unix platforms (e.g. Windows) is Interrupt only.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

//go:build windows

package runtime

import "os"

var shutdownSignals = []os.Signal{os.Interrupt}

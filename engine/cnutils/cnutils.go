// Package cnutils holds small helpers shared by node and wrapper loops.
package cnutils

import (
	"time"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
)

// RunPanicless calls f and reports whether it panicked. The panic is logged with its stack.
func RunPanicless(f func()) (panicked bool) {
	defer func() {
		if err := recover(); err != nil {
			cnlog.TraceError("recovered panic: %v", err)
			panicked = true
		}
	}()
	f()
	return false
}

// RestartOnPanic runs the loop f until it returns without panicking, waiting delay between restarts
func RestartOnPanic(name string, delay time.Duration, f func()) {
	for RunPanicless(f) {
		cnlog.Warnf("%s crashed, restarting in %s", name, delay)
		time.Sleep(delay)
	}
}

// PrefixEnd returns the smallest key larger than every key starting with prefix
func PrefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return "\xff\xff\xff\xff"
}

//go:build !windows

package main

import (
	"syscall"
)

const (
	// BinaryExtension extension used on unix
	BinaryExtension = ""
	// StopSignal syscall used to stop a node gracefully
	StopSignal = syscall.SIGTERM
)

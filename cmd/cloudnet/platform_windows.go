//go:build windows

package main

import (
	"syscall"

	_ "github.com/go-ole/go-ole" // gopsutil reads processes through WMI on windows
)

const (
	// BinaryExtension extension used on windows
	BinaryExtension = ".exe"
	// StopSignal syscall used to stop a node, windows has no SIGTERM for other processes
	StopSignal = syscall.SIGKILL
)

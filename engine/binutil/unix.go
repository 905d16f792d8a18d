//go:build !windows

package binutil

import (
	"os"

	"github.com/sevlyar/go-daemon"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
)

// Daemonize restarts the process in the background and exits the parent. pidFile may be empty.
func Daemonize(pidFile string) *daemon.Context {
	context := &daemon.Context{
		PidFileName: pidFile,
		PidFilePerm: 0644,
	}
	child, err := context.Reborn()

	if err != nil {
		// daemonize failed
		cnlog.Panicf("daemonize failed: %v", err)
	}

	if child != nil {
		cnlog.Infof("run in daemon mode: pid = %d", child.Pid)
		os.Exit(0)
		return nil
	}
	return context
}

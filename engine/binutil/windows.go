//go:build windows

package binutil

import "github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"

type nopRelease int

func (_ nopRelease) Release() error {
	return nil
}

// Daemonize is not supported on windows, the process keeps running in the foreground
func Daemonize(pidFile string) nopRelease {
	// Windows can not daemonize
	cnlog.Warnf("can not run in daemon mode in windows, -d ignored")
	return nopRelease(0)
}

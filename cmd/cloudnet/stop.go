package main

import (
	"syscall"
	"time"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/process"
)

const killSignal = syscall.SIGKILL

func stop(signal syscall.Signal) {
	ns := detectNodeStatus()
	showNodeStatus(ns)
	if !ns.IsRunning() {
		showMsgAndQuit("no node is running currently")
	}

	for _, proc := range ns.Procs {
		stopProc(proc, signal)
	}
}

// stopProc signals the node and waits until it exited, services are stopped by the node itself
func stopProc(proc process.Info, signal syscall.Signal) {
	showMsg("stop process %s pid=%d", proc.Name, proc.Pid)
	err := proc.Process.SendSignal(signal)
	checkErrorOrQuit(err, "stop process failed")

	for {
		time.Sleep(time.Millisecond * 100)
		running, err := proc.Process.IsRunning()
		if err != nil || !running {
			break
		}
	}
}

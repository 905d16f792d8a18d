package main

import (
	"os"
	"os/exec"
	"time"
)

const startTimeout = time.Second * 10

func start() {
	ns := detectNodeStatus()
	if ns.IsRunning() {
		showNodeStatus(ns)
		showMsgAndQuit("a node is already running")
	}

	cmdArgs := []string{"-d", "--configfile", args.configFile}
	if args.pidFile != "" {
		cmdArgs = append(cmdArgs, "--pidfile", args.pidFile)
	}
	showMsg("start %s %v ...", args.nodeBinary, cmdArgs)
	cmd := exec.Command(args.nodeBinary, cmdArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// the daemonizing parent exits once the node runs in the background
	err := cmd.Run()
	checkErrorOrQuit(err, "start node failed")

	deadline := time.Now().Add(startTimeout)
	for {
		ns = detectNodeStatus()
		if ns.IsRunning() {
			showNodeStatus(ns)
			return
		}
		if time.Now().After(deadline) {
			showMsgAndQuit("node did not start in %s, see its log file", startTimeout)
		}
		time.Sleep(time.Millisecond * 100)
	}
}

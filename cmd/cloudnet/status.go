package main

import (
	"path/filepath"
	"strings"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnioutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/config"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/process"
)

// NodeStatus represents the node processes of this machine
type NodeStatus struct {
	Procs []process.Info
}

// IsRunning returns if a node is running
func (ns *NodeStatus) IsRunning() bool {
	return len(ns.Procs) > 0
}

func detectNodeStatus() *NodeStatus {
	procs, err := process.Find(filepath.Base(args.nodeBinary))
	checkErrorOrQuit(err, "list processes failed")
	return filterNodeProcs(procs, args.nodeBinary)
}

// filterNodeProcs keeps the processes whose executable is the node binary
func filterNodeProcs(procs []process.Info, nodeBinary string) *NodeStatus {
	ns := &NodeStatus{}
	base := filepath.Base(nodeBinary)
	for _, proc := range procs {
		if filepath.Base(proc.Cmdline[0]) != base {
			continue
		}
		ns.Procs = append(ns.Procs, proc)
	}
	return ns
}

func status() {
	ns := detectNodeStatus()
	showNodeStatus(ns)
}

func showNodeStatus(ns *NodeStatus) {
	if cnioutil.IsExists(args.configFile) {
		config.SetConfigFile(args.configFile)
		showMsg("%d node process(es) running, node %s has %d known cluster node(s)",
			len(ns.Procs), config.GetNode().UniqueId, len(config.GetClusterNodeIDs()))
	} else {
		showMsg("%d node process(es) running", len(ns.Procs))
	}

	for _, proc := range ns.Procs {
		showMsg("\t%-10d%-16s%s", proc.Pid, proc.Name, strings.Join(proc.Cmdline, " "))
	}
}

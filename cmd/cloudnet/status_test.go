package main

import (
	"testing"

	"github.com/bmizerany/assert"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/process"
)

func TestFilterNodeProcs(t *testing.T) {
	procs := []process.Info{
		{Pid: 10, Name: "node", Cmdline: []string{"/opt/cloudnet/node", "-d", "--configfile", "cloudnet.ini"}},
		{Pid: 11, Name: "nodejs", Cmdline: []string{"/usr/bin/nodejs", "server.js"}},
		{Pid: 12, Name: "vim", Cmdline: []string{"vim", "node"}},
		{Pid: 13, Name: "node", Cmdline: []string{"./node"}},
	}
	ns := filterNodeProcs(procs, "./node")
	assert.T(t, ns.IsRunning())
	assert.Equal(t, 2, len(ns.Procs))
	assert.Equal(t, int32(10), ns.Procs[0].Pid)
	assert.Equal(t, int32(13), ns.Procs[1].Pid)

	assert.T(t, !filterNodeProcs(nil, "./node").IsRunning())
}

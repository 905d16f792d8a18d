package process

import (
	"strings"

	psutil_process "github.com/shirou/gopsutil/process"
)

// Info describes a running process found on the machine
type Info struct {
	Pid     int32
	Name    string
	Cmdline []string
	Cwd     string
	Process *psutil_process.Process
}

// Find returns the processes whose command line contains all of the words
func Find(words ...string) ([]Info, error) {
	ps, err := psutil_process.Processes()
	if err != nil {
		return nil, err
	}

	var res []Info
	for _, p := range ps {
		cmdline, err := p.CmdlineSlice()
		if err != nil || len(cmdline) == 0 {
			continue
		}
		joined := strings.Join(cmdline, " ")
		matched := true
		for _, w := range words {
			if !strings.Contains(joined, w) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		name, _ := p.Name()
		cwd, _ := p.Cwd()
		res = append(res, Info{Pid: p.Pid, Name: name, Cmdline: cmdline, Cwd: cwd, Process: p})
	}
	return res, nil
}

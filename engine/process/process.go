// Package process starts and supervises the operating system processes of services.
package process

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
	psutil_process "github.com/shirou/gopsutil/process"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

// Options describes how a process is started
type Options struct {
	Dir     string
	Command []string
	Env     []string // appended to the environment of the current process
	Output  io.Writer
}

// Process is a started child process
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}

	lock    sync.Mutex
	exitErr error
	ps      *psutil_process.Process
}

// Start starts the process
func Start(options Options) (*Process, error) {
	if len(options.Command) == 0 {
		return nil, errors.New("empty command")
	}
	cmd := exec.Command(options.Command[0], options.Command[1:]...)
	cmd.Dir = options.Dir
	cmd.Env = append(os.Environ(), options.Env...)
	if options.Output != nil {
		cmd.Stdout = options.Output
		cmd.Stderr = options.Output
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %v", options.Command)
	}

	p := &Process{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go p.wait()
	cnlog.Debugf("process %d started: %v", cmd.Process.Pid, options.Command)
	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.lock.Lock()
	p.exitErr = err
	p.lock.Unlock()
	close(p.done)
	cnlog.Debugf("process %d exited: %v", p.Pid(), err)
}

// Pid returns the process id
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done returns a channel closed when the process exited
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// IsAlive returns if the process is still running
func (p *Process) IsAlive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitErr returns the error the process exited with, nil while it is running or exited with status 0
func (p *Process) ExitErr() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.exitErr
}

// Stop asks the process to terminate and kills it if it is still alive after grace
func (p *Process) Stop(grace time.Duration) error {
	if !p.IsAlive() {
		return nil
	}
	if err := terminate(p.cmd.Process); err != nil {
		cnlog.Warnf("process %d: terminate failed: %v", p.Pid(), err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
		cnlog.Warnf("process %d did not stop in %s, killing", p.Pid(), grace)
		return p.Kill()
	}
}

// Kill kills the process and waits for it to exit
func (p *Process) Kill() error {
	if !p.IsAlive() {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-p.done
	return nil
}

// Snapshot reads the cpu and memory usage of the process
func (p *Process) Snapshot() (service.ProcessSnapshot, error) {
	p.lock.Lock()
	if p.ps == nil {
		ps, err := psutil_process.NewProcess(int32(p.Pid()))
		if err != nil {
			p.lock.Unlock()
			return service.ProcessSnapshot{}, err
		}
		p.ps = ps
	}
	ps := p.ps
	p.lock.Unlock()
	return SnapshotOf(ps)
}

// SnapshotOf reads the cpu and memory usage of a gopsutil process
func SnapshotOf(ps *psutil_process.Process) (service.ProcessSnapshot, error) {
	snapshot := service.ProcessSnapshot{Pid: int(ps.Pid)}
	mem, err := ps.MemoryInfo()
	if err != nil {
		return snapshot, err
	}
	snapshot.HeapUsageMemory = int64(mem.RSS)
	snapshot.MaxHeapMemory = int64(mem.VMS)
	if cpu, err := ps.CPUPercent(); err == nil {
		snapshot.CPUUsage = cpu
	}
	if threads, err := ps.NumThreads(); err == nil {
		snapshot.Threads = int(threads)
	}
	return snapshot, nil
}

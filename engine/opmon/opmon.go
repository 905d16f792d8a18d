// Package opmon records the count and duration of named operations (queries, lifecycle
// commands, storage transfers) and dumps them periodically to the log.
package opmon

import (
	"sort"
	"strings"
	"sync"
	"time"

	"fmt"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
)

var (
	monitor = newMonitor()
)

type _OpInfo struct {
	count         uint64
	totalDuration time.Duration
	maxDuration   time.Duration
}

// OpStat is the summary of one operation name
type OpStat struct {
	Name  string
	Count uint64
	Avg   time.Duration
	Max   time.Duration
}

type _Monitor struct {
	sync.Mutex
	opInfos map[string]*_OpInfo
}

func newMonitor() *_Monitor {
	m := &_Monitor{
		opInfos: map[string]*_OpInfo{},
	}
	return m
}

func (monitor *_Monitor) record(opname string, duration time.Duration) {
	monitor.Lock()
	info := monitor.opInfos[opname]
	if info == nil {
		info = &_OpInfo{}
		monitor.opInfos[opname] = info
	}
	info.count += 1
	info.totalDuration += duration
	if duration > info.maxDuration {
		info.maxDuration = duration
	}
	monitor.Unlock()
}

func (monitor *_Monitor) stats(reset bool) []OpStat {
	monitor.Lock()
	opInfos := monitor.opInfos
	if reset {
		monitor.opInfos = map[string]*_OpInfo{}
	} else {
		cp := make(map[string]*_OpInfo, len(opInfos))
		for name, info := range opInfos {
			infoCopy := *info
			cp[name] = &infoCopy
		}
		opInfos = cp
	}
	monitor.Unlock()

	stats := make([]OpStat, 0, len(opInfos))
	for name, info := range opInfos {
		stats = append(stats, OpStat{
			Name:  name,
			Count: info.count,
			Avg:   info.totalDuration / time.Duration(info.count),
			Max:   info.maxDuration,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Name < stats[j].Name
	})
	return stats
}

// Stats returns the operation summaries recorded since the last Dump
func Stats() []OpStat {
	return monitor.stats(false)
}

// Dump logs the operation summaries and resets them
func Dump() {
	stats := monitor.stats(true)
	if len(stats) == 0 {
		return
	}
	var sb strings.Builder
	for _, st := range stats {
		fmt.Fprintf(&sb, "\n%-40sx%-10d AVG %-10s MAX %-10s", st.Name, st.Count, st.Avg, st.Max)
	}
	cnlog.Infof("opmon:%s", sb.String())
}

// StartDumping dumps the operation summaries every interval. Non positive interval disables dumping.
func StartDumping(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		for {
			time.Sleep(interval)
			Dump()
		}
	}()
}

// Operation is the type of operation to be monitored
type Operation struct {
	name      string
	startTime time.Time
}

// StartOperation creates a new operation
func StartOperation(operationName string) *Operation {
	return &Operation{
		name:      operationName,
		startTime: time.Now(),
	}
}

// Finish records the duration of operation and warns if it took longer than warnThreshold
func (op *Operation) Finish(warnThreshold time.Duration) time.Duration {
	takeTime := time.Since(op.startTime)
	monitor.record(op.name, takeTime)
	if takeTime >= warnThreshold {
		cnlog.Warnf("opmon: operation %s takes %s > %s", op.name, takeTime, warnThreshold)
	}
	return takeTime
}

// Package noderegistry tracks the nodes of the cluster and their free memory, and selects the node
// a new service is placed on.
package noderegistry

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnutils"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

// NodeInfo is the static description of a node
type NodeInfo struct {
	UniqueId    string
	Address     string
	MaxMemoryMB int
}

// NodeSnapshot is the last known state of a node
type NodeSnapshot struct {
	Node             NodeInfo
	Online           bool
	ReservedMemoryMB int
	UsedMemoryMB     int
	CPUUsage         float64
	LastUpdate       time.Time
}

// FreeMemoryMB returns the memory still available for services
func (s NodeSnapshot) FreeMemoryMB() int {
	return s.Node.MaxMemoryMB - s.ReservedMemoryMB
}

// ToDocument encodes the snapshot
func (s NodeSnapshot) ToDocument() document.Document {
	return document.New().
		Append("uniqueId", s.Node.UniqueId).
		Append("address", s.Node.Address).
		Append("maxMemory", s.Node.MaxMemoryMB).
		Append("reservedMemory", s.ReservedMemoryMB).
		Append("usedMemory", s.UsedMemoryMB).
		Append("cpuUsage", s.CPUUsage).
		Append("lastUpdate", s.LastUpdate.UnixMilli())
}

// NodeSnapshotFromDocument decodes a snapshot
func NodeSnapshotFromDocument(doc document.Document) NodeSnapshot {
	return NodeSnapshot{
		Node: NodeInfo{
			UniqueId:    doc.GetString("uniqueId"),
			Address:     doc.GetString("address"),
			MaxMemoryMB: doc.GetInt("maxMemory"),
		},
		Online:           true,
		ReservedMemoryMB: doc.GetInt("reservedMemory"),
		UsedMemoryMB:     doc.GetInt("usedMemory"),
		CPUUsage:         doc.GetFloat("cpuUsage"),
		LastUpdate:       time.UnixMilli(doc.GetInt64("lastUpdate")),
	}
}

// Registry holds the snapshots of all known nodes
type Registry struct {
	local string

	lock  sync.RWMutex
	nodes map[string]*NodeSnapshot
}

// NewRegistry creates a registry with the local node online.
// If local.MaxMemoryMB is 0 the system memory of the machine is used.
func NewRegistry(local NodeInfo) *Registry {
	if local.MaxMemoryMB <= 0 {
		local.MaxMemoryMB = systemMemoryMB()
	}
	r := &Registry{
		local: local.UniqueId,
		nodes: map[string]*NodeSnapshot{},
	}
	r.nodes[local.UniqueId] = &NodeSnapshot{Node: local, Online: true, LastUpdate: time.Now()}
	return r
}

func systemMemoryMB() int {
	vm, err := mem.VirtualMemory()
	if err != nil {
		cnlog.Errorf("noderegistry: read system memory failed: %v", err)
		return 0
	}
	return int(vm.Total / 1024 / 1024)
}

// LocalId returns the unique id of the local node
func (r *Registry) LocalId() string {
	return r.local
}

// AddNode adds a known cluster node, offline until its first snapshot arrives
func (r *Registry) AddNode(info NodeInfo) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.nodes[info.UniqueId]; ok {
		return
	}
	r.nodes[info.UniqueId] = &NodeSnapshot{Node: info}
}

// RemoveNode forgets a node
func (r *Registry) RemoveNode(uniqueId string) {
	if uniqueId == r.local {
		return
	}
	r.lock.Lock()
	delete(r.nodes, uniqueId)
	r.lock.Unlock()
}

// UpdateSnapshot applies the snapshot a remote node published
func (r *Registry) UpdateSnapshot(snapshot NodeSnapshot) {
	if snapshot.Node.UniqueId == r.local {
		return
	}
	snapshot.Online = true
	r.lock.Lock()
	r.nodes[snapshot.Node.UniqueId] = &snapshot
	r.lock.Unlock()
}

// SetOffline marks a node offline, offline nodes are never selected
func (r *Registry) SetOffline(uniqueId string) {
	r.lock.Lock()
	if s, ok := r.nodes[uniqueId]; ok && uniqueId != r.local {
		s.Online = false
	}
	r.lock.Unlock()
}

// CheckTimeouts marks remote nodes without update since timeout offline
func (r *Registry) CheckTimeouts(now time.Time, timeout time.Duration) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for id, s := range r.nodes {
		if id != r.local && s.Online && now.Sub(s.LastUpdate) > timeout {
			cnlog.Warnf("noderegistry: node %s timed out", id)
			s.Online = false
		}
	}
}

// Node returns the snapshot of the node
func (r *Registry) Node(uniqueId string) (NodeSnapshot, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	s, ok := r.nodes[uniqueId]
	if !ok {
		return NodeSnapshot{}, false
	}
	return *s, true
}

// Nodes returns the snapshots of all nodes sorted by id
func (r *Registry) Nodes() []NodeSnapshot {
	r.lock.RLock()
	res := make([]NodeSnapshot, 0, len(r.nodes))
	for _, s := range r.nodes {
		res = append(res, *s)
	}
	r.lock.RUnlock()
	sort.Slice(res, func(i, j int) bool { return res[i].Node.UniqueId < res[j].Node.UniqueId })
	return res
}

// LocalSnapshot returns the snapshot of the local node
func (r *Registry) LocalSnapshot() NodeSnapshot {
	s, _ := r.Node(r.local)
	return s
}

// SelectNodeWithCapacity returns the online node with the most free memory that can hold the
// heap of the process. The local node wins ties.
func (r *Registry) SelectNodeWithCapacity(pc service.ProcessConfiguration) (string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	best := ""
	bestFree := -1
	for _, id := range r.sortedIds() {
		s := r.nodes[id]
		free := s.FreeMemoryMB()
		if !s.Online || free < pc.MaxHeapMemoryMB {
			continue
		}
		if free > bestFree || (free == bestFree && id == r.local) {
			best, bestFree = id, free
		}
	}
	if best == "" {
		return "", errors.Wrapf(common.ErrNoNodeCapacity, "%d MB requested", pc.MaxHeapMemoryMB)
	}
	return best, nil
}

func (r *Registry) sortedIds() []string {
	ids := make([]string, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reserve books memory of a node for a created service
func (r *Registry) Reserve(uniqueId string, memoryMB int) {
	r.lock.Lock()
	if s, ok := r.nodes[uniqueId]; ok {
		s.ReservedMemoryMB += memoryMB
	}
	r.lock.Unlock()
}

// Release returns memory booked by Reserve
func (r *Registry) Release(uniqueId string, memoryMB int) {
	r.lock.Lock()
	if s, ok := r.nodes[uniqueId]; ok {
		s.ReservedMemoryMB -= memoryMB
		if s.ReservedMemoryMB < 0 {
			s.ReservedMemoryMB = 0
		}
	}
	r.lock.Unlock()
}

// StartCollecting refreshes the cpu and memory usage of the local node every interval until ctx is done
func (r *Registry) StartCollecting(ctx context.Context, interval time.Duration) {
	pid := os.Getpid()
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		cnlog.Errorf("noderegistry: can not find node process: pid = %v", pid)
		return
	}

	go cnutils.RestartOnPanic("node info collector", interval, func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			cpu, err := p.CPUPercentWithContext(ctx)
			if err != nil {
				cnlog.Warnf("noderegistry: get process cpu percent failed: %s", err)
				continue
			}
			used := 0
			if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
				used = int(vm.Used / 1024 / 1024)
			}

			r.lock.Lock()
			s := r.nodes[r.local]
			s.CPUUsage = cpu
			s.UsedMemoryMB = used
			s.LastUpdate = time.Now()
			r.lock.Unlock()
		}
	})
}

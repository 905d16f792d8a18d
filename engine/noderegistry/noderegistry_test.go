package noderegistry

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

func heap(mb int) service.ProcessConfiguration {
	return service.ProcessConfiguration{Environment: service.MINECRAFT_SERVER, MaxHeapMemoryMB: mb}
}

func TestSelectNodeWithCapacity(t *testing.T) {
	r := NewRegistry(NodeInfo{UniqueId: "Node-1", MaxMemoryMB: 2048})

	id, err := r.SelectNodeWithCapacity(heap(512))
	assert.Equal(t, nil, err)
	assert.Equal(t, "Node-1", id)

	r.AddNode(NodeInfo{UniqueId: "Node-2", MaxMemoryMB: 8192})
	id, _ = r.SelectNodeWithCapacity(heap(512))
	assert.Equal(t, "Node-1", id)

	r.UpdateSnapshot(NodeSnapshot{Node: NodeInfo{UniqueId: "Node-2", MaxMemoryMB: 8192}, LastUpdate: time.Now()})
	id, _ = r.SelectNodeWithCapacity(heap(512))
	assert.Equal(t, "Node-2", id)

	r.SetOffline("Node-2")
	r.Reserve("Node-1", 1800)
	_, err = r.SelectNodeWithCapacity(heap(512))
	assert.Equal(t, common.ErrNoNodeCapacity, errors.Cause(err))

	r.Release("Node-1", 1800)
	id, _ = r.SelectNodeWithCapacity(heap(2048))
	assert.Equal(t, "Node-1", id)
}

func TestLocalWinsTies(t *testing.T) {
	r := NewRegistry(NodeInfo{UniqueId: "Node-2", MaxMemoryMB: 1024})
	r.UpdateSnapshot(NodeSnapshot{Node: NodeInfo{UniqueId: "Node-1", MaxMemoryMB: 1024}, LastUpdate: time.Now()})
	id, err := r.SelectNodeWithCapacity(heap(256))
	assert.Equal(t, nil, err)
	assert.Equal(t, "Node-2", id)
}

func TestCheckTimeouts(t *testing.T) {
	r := NewRegistry(NodeInfo{UniqueId: "Node-1", MaxMemoryMB: 1024})
	r.UpdateSnapshot(NodeSnapshot{Node: NodeInfo{UniqueId: "Node-2", MaxMemoryMB: 4096}, LastUpdate: time.Now().Add(-time.Minute)})
	r.CheckTimeouts(time.Now(), 30*time.Second)

	s, ok := r.Node("Node-2")
	assert.T(t, ok)
	assert.Equal(t, false, s.Online)
	assert.Equal(t, true, r.LocalSnapshot().Online)
}

func TestSnapshotDocument(t *testing.T) {
	s := NodeSnapshot{
		Node:             NodeInfo{UniqueId: "Node-3", Address: "10.0.0.3:1410", MaxMemoryMB: 4096},
		ReservedMemoryMB: 1024,
		CPUUsage:         12.5,
		LastUpdate:       time.UnixMilli(1700000000000),
	}
	back := NodeSnapshotFromDocument(s.ToDocument())
	assert.Equal(t, s.Node, back.Node)
	assert.Equal(t, 3072, back.FreeMemoryMB())
	assert.Equal(t, 12.5, back.CPUUsage)
	assert.Equal(t, s.LastUpdate.UnixMilli(), back.LastUpdate.UnixMilli())
}

func TestSystemMemory(t *testing.T) {
	r := NewRegistry(NodeInfo{UniqueId: "Node-1"})
	assert.T(t, r.LocalSnapshot().Node.MaxMemoryMB > 0)
}

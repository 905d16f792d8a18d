package service

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
)

// ServiceId is the immutable identity of a service
type ServiceId struct {
	UniqueId      uuid.UUID
	TaskName      string
	NodeUniqueId  string
	TaskServiceId int
}

// Name returns the display name task-id
func (id ServiceId) Name() string {
	return id.TaskName + "-" + strconv.Itoa(id.TaskServiceId)
}

func (id ServiceId) String() string {
	return fmt.Sprintf("%s#%s@%s", id.Name(), id.UniqueId, id.NodeUniqueId)
}

// ToDocument encodes the service id
func (id ServiceId) ToDocument() document.Document {
	return document.New().
		Append("uniqueId", id.UniqueId.String()).
		Append("taskName", id.TaskName).
		Append("nodeUniqueId", id.NodeUniqueId).
		Append("taskServiceId", id.TaskServiceId)
}

// ServiceIdFromDocument decodes a service id
func ServiceIdFromDocument(doc document.Document) (ServiceId, error) {
	uid, err := uuid.Parse(doc.GetString("uniqueId"))
	if err != nil {
		return ServiceId{}, errors.Wrap(err, "service id")
	}
	return ServiceId{
		UniqueId:      uid,
		TaskName:      doc.GetString("taskName"),
		NodeUniqueId:  doc.GetString("nodeUniqueId"),
		TaskServiceId: doc.GetInt("taskServiceId"),
	}, nil
}

// ServiceLifeCycle is the lifecycle state of a service
type ServiceLifeCycle string

// Service lifecycle states
const (
	PREPARED ServiceLifeCycle = "PREPARED"
	RUNNING  ServiceLifeCycle = "RUNNING"
	STOPPED  ServiceLifeCycle = "STOPPED"
	DELETED  ServiceLifeCycle = "DELETED"
)

var lifeCycleTransitions = map[ServiceLifeCycle][]ServiceLifeCycle{
	PREPARED: {RUNNING, DELETED},
	RUNNING:  {STOPPED},
	STOPPED:  {DELETED},
}

// CanTransitionTo checks if the state machine allows moving from lc to next.
// A stopped service is never resurrected, it is deleted and re-created.
func (lc ServiceLifeCycle) CanTransitionTo(next ServiceLifeCycle) bool {
	for _, s := range lifeCycleTransitions[lc] {
		if s == next {
			return true
		}
	}
	return false
}

// HostAndPort is a network address
type HostAndPort struct {
	Host string
	Port int
}

func (hp HostAndPort) String() string {
	return fmt.Sprintf("%s:%d", hp.Host, hp.Port)
}

// ProcessSnapshot is a point in time view of a service process
type ProcessSnapshot struct {
	Pid             int
	HeapUsageMemory int64
	MaxHeapMemory   int64
	CPUUsage        float64
	Threads         int
}

// ToDocument encodes the process snapshot
func (ps ProcessSnapshot) ToDocument() document.Document {
	return document.New().
		Append("pid", ps.Pid).
		Append("heapUsageMemory", ps.HeapUsageMemory).
		Append("maxHeapMemory", ps.MaxHeapMemory).
		Append("cpuUsage", ps.CPUUsage).
		Append("threads", ps.Threads)
}

// ProcessSnapshotFromDocument decodes a process snapshot
func ProcessSnapshotFromDocument(doc document.Document) ProcessSnapshot {
	return ProcessSnapshot{
		Pid:             doc.GetInt("pid"),
		HeapUsageMemory: doc.GetInt64("heapUsageMemory"),
		MaxHeapMemory:   doc.GetInt64("maxHeapMemory"),
		CPUUsage:        doc.GetFloat("cpuUsage"),
		Threads:         doc.GetInt("threads"),
	}
}

// ServiceInfoSnapshot is a point in time view of a service. Snapshots are values: the With* methods
// return modified copies.
type ServiceInfoSnapshot struct {
	CreationTime    time.Time
	ServiceId       ServiceId
	Address         HostAndPort
	Connected       bool
	LifeCycle       ServiceLifeCycle
	ProcessSnapshot ProcessSnapshot
	Properties      document.Document
	LastUpdate      time.Time
	Configuration   ServiceConfiguration
}

// Name returns the service name
func (s ServiceInfoSnapshot) Name() string {
	return s.ServiceId.Name()
}

// Clone returns a deep copy
func (s ServiceInfoSnapshot) Clone() ServiceInfoSnapshot {
	s.Properties = s.Properties.Clone()
	s.Configuration = s.Configuration.Clone()
	return s
}

// WithLifeCycle returns a copy in the lifecycle state
func (s ServiceInfoSnapshot) WithLifeCycle(lc ServiceLifeCycle, now time.Time) ServiceInfoSnapshot {
	cp := s.Clone()
	cp.LifeCycle = lc
	cp.LastUpdate = now
	return cp
}

// WithProcessSnapshot returns a copy carrying the process snapshot
func (s ServiceInfoSnapshot) WithProcessSnapshot(ps ProcessSnapshot, now time.Time) ServiceInfoSnapshot {
	cp := s.Clone()
	cp.ProcessSnapshot = ps
	cp.LastUpdate = now
	return cp
}

// HasGroup checks if the service belongs to the group
func (s ServiceInfoSnapshot) HasGroup(group string) bool {
	for _, g := range s.Configuration.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// ToDocument encodes the snapshot
func (s ServiceInfoSnapshot) ToDocument() document.Document {
	props := s.Properties
	if props == nil {
		props = document.New()
	}
	return document.New().
		Append("creationTime", s.CreationTime.UnixMilli()).
		Append("serviceId", map[string]interface{}(s.ServiceId.ToDocument())).
		Append("address", map[string]interface{}{"host": s.Address.Host, "port": s.Address.Port}).
		Append("connected", s.Connected).
		Append("lifeCycle", string(s.LifeCycle)).
		Append("processSnapshot", map[string]interface{}(s.ProcessSnapshot.ToDocument())).
		Append("properties", map[string]interface{}(props)).
		Append("lastUpdate", s.LastUpdate.UnixMilli()).
		Append("configuration", map[string]interface{}(s.Configuration.ToDocument()))
}

// ServiceInfoSnapshotFromDocument decodes a snapshot
func ServiceInfoSnapshotFromDocument(doc document.Document) (ServiceInfoSnapshot, error) {
	id, err := ServiceIdFromDocument(doc.GetDocument("serviceId"))
	if err != nil {
		return ServiceInfoSnapshot{}, err
	}
	cfg, err := ServiceConfigurationFromDocument(doc.GetDocument("configuration"))
	if err != nil {
		return ServiceInfoSnapshot{}, err
	}
	address := doc.GetDocument("address")
	props := doc.GetDocument("properties")
	if props == nil {
		props = document.New()
	}
	return ServiceInfoSnapshot{
		CreationTime:    time.UnixMilli(doc.GetInt64("creationTime")),
		ServiceId:       id,
		Address:         HostAndPort{Host: address.GetString("host"), Port: address.GetInt("port")},
		Connected:       doc.GetBool("connected"),
		LifeCycle:       ServiceLifeCycle(doc.GetString("lifeCycle")),
		ProcessSnapshot: ProcessSnapshotFromDocument(doc.GetDocument("processSnapshot")),
		Properties:      props,
		LastUpdate:      time.UnixMilli(doc.GetInt64("lastUpdate")),
		Configuration:   cfg,
	}, nil
}

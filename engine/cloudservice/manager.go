// Package cloudservice manages the lifecycle of the services hosted by a node.
//
// A service is created PREPARED from a task, started into RUNNING by materializing its working
// directory and launching its wrapper, and stopped through STOPPED into DELETED. Every service has
// its own lock: commands on one service are serialized, commands on distinct services never
// contend. Every transition is broadcast to the cluster and published on the event bus.
package cloudservice

import (
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/event"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/messenger"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/module"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/network"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/noderegistry"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/query"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/registry"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

// TemplateStorage copies templates into services and uploads deployments out of them
type TemplateStorage interface {
	CopyTemplate(template service.ServiceTemplate, targetDir string) error
	UploadDeployment(deployment service.ServiceDeployment, sourceDir string) error
}

// ChannelLookup returns the channel of the wrapper of the named service, or nil if it is not connected
type ChannelLookup func(serviceName string) *network.Channel

// Forwarder creates the service of the task on another node of the cluster
type Forwarder func(nodeId string, task *service.ServiceTask) (service.ServiceInfoSnapshot, error)

// Options are the collaborators of a Manager
type Options struct {
	// WorkDir is the directory holding the working directories of the services
	WorkDir string
	// CacheDir holds downloaded inclusions
	CacheDir string

	Registry   *registry.Registry
	Nodes      *noderegistry.Registry
	Storage    TemplateStorage
	Launcher   Launcher
	Downloader module.Downloader
	Queries    *query.Provider
	Messenger  *messenger.Messenger
	Bus        *event.Bus
	Wrappers   ChannelLookup
	// Forward is used when another node is selected. Without it the local node is used if it has capacity.
	Forward Forwarder

	// StopGracePeriod defaults to consts.SERVICE_STOP_GRACE_PERIOD
	StopGracePeriod time.Duration
	// Now defaults to time.Now
	Now func() time.Time
}

type cloudService struct {
	// immutable after creation
	id       service.ServiceId
	port     int
	memoryMB int

	lock          sync.Mutex
	snapshot      service.ServiceInfoSnapshot
	workDir       string
	process       ServiceProcess
	lastHeartbeat time.Time
}

// Manager owns the services of the local node
type Manager struct {
	opts Options

	lock     sync.RWMutex
	services map[uuid.UUID]*cloudService
}

// NewManager creates a manager. Registry, Nodes, Storage, Launcher, Queries, Messenger and Bus are required.
func NewManager(opts Options) *Manager {
	if opts.StopGracePeriod <= 0 {
		opts.StopGracePeriod = consts.SERVICE_STOP_GRACE_PERIOD
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CacheDir == "" {
		opts.CacheDir = filepath.Join(opts.WorkDir, ".cache")
	}
	if opts.Downloader == nil {
		opts.Downloader = &module.HTTPDownloader{}
	}
	if opts.Wrappers == nil {
		opts.Wrappers = func(string) *network.Channel { return nil }
	}
	return &Manager{
		opts:     opts,
		services: map[uuid.UUID]*cloudService{},
	}
}

// CreateCloudService creates a PREPARED service from the task on the node with the most capacity.
// The groups of the task must exist; their configuration is merged into the service.
func (m *Manager) CreateCloudService(task *service.ServiceTask) (service.ServiceInfoSnapshot, error) {
	base, err := m.prepare(task)
	if err != nil {
		return service.ServiceInfoSnapshot{}, err
	}
	nodeId, err := m.opts.Nodes.SelectNodeWithCapacity(task.Process)
	if err != nil {
		return service.ServiceInfoSnapshot{}, err
	}
	if nodeId == m.opts.Nodes.LocalId() {
		return m.create(nodeId, task, base)
	}
	if m.opts.Forward == nil {
		return m.createLocal(task, base)
	}
	cnlog.Debugf("service of task %s is created on node %s", task.Name, nodeId)
	return m.opts.Forward(nodeId, task)
}

// CreateLocalCloudService creates a PREPARED service from the task on the local node,
// used for create requests forwarded by other nodes
func (m *Manager) CreateLocalCloudService(task *service.ServiceTask) (service.ServiceInfoSnapshot, error) {
	base, err := m.prepare(task)
	if err != nil {
		return service.ServiceInfoSnapshot{}, err
	}
	return m.createLocal(task, base)
}

func (m *Manager) createLocal(task *service.ServiceTask, base service.ServiceConfigurationBase) (service.ServiceInfoSnapshot, error) {
	local := m.opts.Nodes.LocalSnapshot()
	if local.FreeMemoryMB() < task.Process.MaxHeapMemoryMB {
		return service.ServiceInfoSnapshot{}, errors.Wrapf(common.ErrNoNodeCapacity, "%d MB requested on %s", task.Process.MaxHeapMemoryMB, local.Node.UniqueId)
	}
	return m.create(local.Node.UniqueId, task, base)
}

// prepare validates the task and merges the configuration of its groups
func (m *Manager) prepare(task *service.ServiceTask) (service.ServiceConfigurationBase, error) {
	if task == nil || task.Name == "" {
		return service.ServiceConfigurationBase{}, errors.New("task name is empty")
	}
	if task.Process.Environment.Jar() == "" {
		return service.ServiceConfigurationBase{}, errors.Errorf("task %s: unknown environment %q", task.Name, task.Process.Environment)
	}

	base := task.ServiceConfigurationBase.Clone()
	for _, groupName := range task.Groups {
		group, ok := m.opts.Registry.Group(groupName)
		if !ok {
			return service.ServiceConfigurationBase{}, errors.Wrapf(common.ErrNotFound, "group %s of task %s", groupName, task.Name)
		}
		base.Merge(group.ServiceConfigurationBase)
	}
	return base, nil
}

func (m *Manager) create(nodeId string, task *service.ServiceTask, base service.ServiceConfigurationBase) (service.ServiceInfoSnapshot, error) {
	now := m.opts.Now()
	m.lock.Lock()
	id := service.ServiceId{
		UniqueId:      uuid.New(),
		TaskName:      task.Name,
		NodeUniqueId:  nodeId,
		TaskServiceId: m.nextTaskServiceId(task.Name),
	}
	cfg := service.ServiceConfiguration{
		ServiceConfigurationBase: base,
		ServiceId:                id,
		Runtime:                  task.Runtime,
		AutoDeleteOnStop:         task.AutoDeleteOnStop,
		StaticService:            task.StaticServices,
		Groups:                   append([]string{}, task.Groups...),
		Process:                  task.Process,
		Port:                     m.nextPort(nodeId, task),
	}
	cfg.Process.JvmOptions = append([]string{}, task.Process.JvmOptions...)
	cs := &cloudService{
		snapshot: service.ServiceInfoSnapshot{
			CreationTime:  now,
			ServiceId:     id,
			Address:       service.HostAndPort{Host: m.nodeHost(nodeId), Port: cfg.Port},
			LifeCycle:     service.PREPARED,
			Properties:    document.New(),
			LastUpdate:    now,
			Configuration: cfg,
		},
		id:       id,
		port:     cfg.Port,
		memoryMB: cfg.Process.MaxHeapMemoryMB,
		workDir:  m.workDirOf(id),
	}
	m.services[id.UniqueId] = cs
	m.lock.Unlock()

	m.opts.Nodes.Reserve(nodeId, task.Process.MaxHeapMemoryMB)

	cs.lock.Lock()
	defer cs.lock.Unlock()
	if err := m.persistConfiguration(cs); err != nil {
		m.forget(cs)
		return service.ServiceInfoSnapshot{}, err
	}

	snapshot := cs.snapshot.Clone()
	cnlog.Infof("service %s created on node %s", id, nodeId)
	m.opts.Bus.Publish(&event.Event{Kind: event.SERVICE_REGISTER, Service: &snapshot})
	m.broadcast(snapshot)
	return cs.snapshot.Clone(), nil
}

// CreateCloudServiceByTask creates a service from the registered task
func (m *Manager) CreateCloudServiceByTask(taskName string) (service.ServiceInfoSnapshot, error) {
	task, ok := m.opts.Registry.Task(taskName)
	if !ok {
		return service.ServiceInfoSnapshot{}, errors.Wrapf(common.ErrNotFound, "task %s", taskName)
	}
	return m.CreateCloudService(task)
}

// nextTaskServiceId returns the lowest unused service id of the task, starting with 1. m.lock must be held.
func (m *Manager) nextTaskServiceId(taskName string) int {
	used := map[int]bool{}
	for _, cs := range m.services {
		if cs.id.TaskName == taskName {
			used[cs.id.TaskServiceId] = true
		}
	}
	id := 1
	for used[id] {
		id++
	}
	return id
}

// nextPort returns the first port from the task start port not used by a service of the node. m.lock must be held.
func (m *Manager) nextPort(nodeId string, task *service.ServiceTask) int {
	used := map[int]bool{}
	for _, cs := range m.services {
		if cs.id.NodeUniqueId == nodeId {
			used[cs.port] = true
		}
	}
	port := task.StartPort
	if port <= 0 {
		port = task.Process.Environment.DefaultPort()
	}
	for used[port] {
		port++
	}
	return port
}

func (m *Manager) nodeHost(nodeId string) string {
	if node, ok := m.opts.Nodes.Node(nodeId); ok && node.Node.Address != "" {
		if host, _, err := net.SplitHostPort(node.Node.Address); err == nil && host != "" {
			return host
		}
	}
	return "127.0.0.1"
}

func (m *Manager) workDirOf(id service.ServiceId) string {
	return filepath.Join(m.opts.WorkDir, id.Name()+"_"+id.UniqueId.String())
}

// ConfigurationFile returns the file the configuration of a service is persisted to
func ConfigurationFile(workDir string) string {
	return filepath.Join(workDir, consts.WRAPPER_DIR, "service.json")
}

var configPacker = document.JSONMsgPacker{}

// persistConfiguration writes the service configuration into the working directory, where the wrapper reads it
func (m *Manager) persistConfiguration(cs *cloudService) error {
	data, err := document.Encode(configPacker, cs.snapshot.Configuration.ToDocument(), nil)
	if err != nil {
		return err
	}
	file := ConfigurationFile(cs.workDir)
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return errors.Wrapf(err, "persist configuration of %s", cs.snapshot.Name())
	}
	return errors.Wrapf(os.WriteFile(file, data, 0644), "persist configuration of %s", cs.snapshot.Name())
}

// LoadConfiguration reads a configuration written for a service
func LoadConfiguration(file string) (service.ServiceConfiguration, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return service.ServiceConfiguration{}, err
	}
	doc, err := document.Decode(configPacker, data)
	if err != nil {
		return service.ServiceConfiguration{}, errors.Wrapf(err, "decode %s", file)
	}
	return service.ServiceConfigurationFromDocument(doc)
}

func (m *Manager) get(id uuid.UUID) (*cloudService, error) {
	m.lock.RLock()
	cs := m.services[id]
	m.lock.RUnlock()
	if cs == nil {
		return nil, errors.Wrapf(common.ErrNotFound, "service %s", id)
	}
	return cs, nil
}

func (m *Manager) forget(cs *cloudService) {
	m.lock.Lock()
	delete(m.services, cs.id.UniqueId)
	m.lock.Unlock()
	m.opts.Nodes.Release(cs.id.NodeUniqueId, cs.memoryMB)
}

// transition moves the service into the lifecycle state, broadcasts the snapshot and publishes the
// lifecycle event. cs.lock must be held.
func (m *Manager) transition(cs *cloudService, lc service.ServiceLifeCycle) error {
	prev := cs.snapshot.LifeCycle
	if !prev.CanTransitionTo(lc) {
		return errors.Wrapf(common.ErrInvalidLifecycleTransition, "%s: %s -> %s", cs.snapshot.Name(), prev, lc)
	}
	cs.snapshot = cs.snapshot.WithLifeCycle(lc, m.opts.Now())
	snapshot := cs.snapshot.Clone()
	cnlog.Infof("service %s: %s -> %s", snapshot.Name(), prev, lc)
	m.broadcast(snapshot)
	m.opts.Bus.Publish(&event.Event{Kind: event.SERVICE_LIFECYCLE, Service: &snapshot, PreviousLifeCycle: prev})
	return nil
}

func (m *Manager) broadcast(snapshot service.ServiceInfoSnapshot) {
	if _, err := m.opts.Messenger.SendChannelMessage(consts.INTERNAL_CHANNEL, consts.MSG_SERVICE_INFO_UPDATE, snapshot.ToDocument()); err != nil {
		cnlog.Warnf("broadcast snapshot of %s failed: %v", snapshot.Name(), err)
	}
}

// GetCloudService returns the snapshot of the service
func (m *Manager) GetCloudService(id uuid.UUID) (service.ServiceInfoSnapshot, bool) {
	cs, err := m.get(id)
	if err != nil {
		return service.ServiceInfoSnapshot{}, false
	}
	cs.lock.Lock()
	defer cs.lock.Unlock()
	return cs.snapshot.Clone(), true
}

// GetCloudServiceByName returns the snapshot of the service named task-id
func (m *Manager) GetCloudServiceByName(name string) (service.ServiceInfoSnapshot, bool) {
	for _, s := range m.GetCloudServices() {
		if s.Name() == name {
			return s, true
		}
	}
	return service.ServiceInfoSnapshot{}, false
}

// GetCloudServices returns the snapshots of all services ordered by name
func (m *Manager) GetCloudServices() []service.ServiceInfoSnapshot {
	return m.filter(func(service.ServiceInfoSnapshot) bool { return true })
}

// GetCloudServicesByTask returns the snapshots of the services of the task
func (m *Manager) GetCloudServicesByTask(taskName string) []service.ServiceInfoSnapshot {
	return m.filter(func(s service.ServiceInfoSnapshot) bool { return s.ServiceId.TaskName == taskName })
}

// GetCloudServicesByGroup returns the snapshots of the services of the group
func (m *Manager) GetCloudServicesByGroup(group string) []service.ServiceInfoSnapshot {
	return m.filter(func(s service.ServiceInfoSnapshot) bool { return s.HasGroup(group) })
}

func (m *Manager) filter(pred func(service.ServiceInfoSnapshot) bool) []service.ServiceInfoSnapshot {
	m.lock.RLock()
	all := make([]*cloudService, 0, len(m.services))
	for _, cs := range m.services {
		all = append(all, cs)
	}
	m.lock.RUnlock()

	var res []service.ServiceInfoSnapshot
	for _, cs := range all {
		cs.lock.Lock()
		s := cs.snapshot.Clone()
		cs.lock.Unlock()
		if pred(s) {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i].ServiceId, res[j].ServiceId
		if a.TaskName != b.TaskName {
			return a.TaskName < b.TaskName
		}
		return a.TaskServiceId < b.TaskServiceId
	})
	return res
}

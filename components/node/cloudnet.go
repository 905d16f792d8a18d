package main

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	timer "github.com/xiaonanln/goTimer"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/async"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/binutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cloudservice"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/config"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/event"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/messenger"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/module"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/netutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/network"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/noderegistry"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/opmon"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/post"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/query"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/registry"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/storage"
)

const (
	rsNotRunning = iota
	rsRunning
	rsTerminating
	rsTerminated
)

// _JOB_GROUP_SERVICES runs blocking service lifecycle work off the main loop
const _JOB_GROUP_SERVICES = "services"

// CloudNet is the node: it hosts services, answers wrappers and talks to the other nodes of the cluster
type CloudNet struct {
	config *config.CloudNetConfig

	bus        *event.Bus
	dispatcher *network.Dispatcher
	server     *network.Server
	queries    *query.Provider
	messenger  *messenger.Messenger
	db         *kvdb.KVDB
	registry   *registry.Registry
	nodes      *noderegistry.Registry
	storage    *storage.Registry
	modules    *module.Provider
	services   *cloudservice.Manager

	peerLock sync.RWMutex
	peers    map[string]*network.Client // by unique id of the dialed node

	clusterLock     sync.RWMutex
	clusterServices map[uuid.UUID]service.ServiceInfoSnapshot // services hosted by other nodes

	runState   xnsyncutil.AtomicInt
	ctx        context.Context
	cancel     context.CancelFunc
	terminated *xnsyncutil.OneTimeCond
}

// newCloudNet creates the node of the configuration. A nil launcher starts the wrapper binary of the configuration.
func newCloudNet(cfg *config.CloudNetConfig, launcher cloudservice.Launcher) (*CloudNet, error) {
	nodeConfig := cfg.Node
	cn := &CloudNet{
		config:          cfg,
		bus:             event.NewBus(),
		dispatcher:      network.NewDispatcher(),
		queries:         query.NewProvider(),
		peers:           map[string]*network.Client{},
		clusterServices: map[uuid.UUID]service.ServiceInfoSnapshot{},
		terminated:      xnsyncutil.NewOneTimeCond(),
	}
	cn.ctx, cn.cancel = context.WithCancel(context.Background())

	cn.queries.Attach(cn.dispatcher)
	cn.server = network.NewServer(nodeConfig.UniqueId, cn.networkOptions(), cn.dispatcher)
	cn.messenger = messenger.NewMessenger(messenger.ChannelSourceFunc(cn.channels), cn.bus)
	cn.messenger.Attach(cn.dispatcher)

	cn.nodes = noderegistry.NewRegistry(noderegistry.NodeInfo{
		UniqueId:    nodeConfig.UniqueId,
		Address:     net.JoinHostPort(nodeConfig.Ip, fmt.Sprint(nodeConfig.Port)),
		MaxMemoryMB: nodeConfig.MaxMemoryMB,
	})
	for _, nc := range cn.clusterNodes() {
		cn.nodes.AddNode(noderegistry.NodeInfo{UniqueId: nc.UniqueId, Address: nc.Address, MaxMemoryMB: nc.MaxMemoryMB})
	}

	var err error
	kvdbConfig := cfg.KVDB
	cn.db, err = kvdb.Open(kvdb.Options{
		Type:       kvdbConfig.Type,
		URL:        kvdbConfig.Url,
		DB:         kvdbConfig.DB,
		Collection: kvdbConfig.Collection,
		Host:       kvdbConfig.Url,
		StartNodes: kvdbConfig.StartNodes.ToList(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open kvdb")
	}
	if cn.registry, err = registry.Open(cn.db); err != nil {
		cn.db.Close()
		return nil, errors.Wrap(err, "open group and task registry")
	}

	storageConfig := cfg.Storage
	cn.storage, err = storage.Open(storage.Options{
		Directory: storageConfig.Directory,
		MongoName: storageConfig.MongoName,
		MongoURL:  storageConfig.Url,
		MongoDB:   storageConfig.DB,
	})
	if err != nil {
		cn.db.Close()
		return nil, errors.Wrap(err, "open template storages")
	}

	downloader := &module.HTTPDownloader{UserAgent: cfg.Modules.UserAgent}
	if launcher == nil {
		launcher = cn.newWrapperLauncher()
	}
	cn.services = cloudservice.NewManager(cloudservice.Options{
		WorkDir:    nodeConfig.ServicesDir,
		Registry:   cn.registry,
		Nodes:      cn.nodes,
		Storage:    cn.storage,
		Launcher:   launcher,
		Downloader: downloader,
		Queries:    cn.queries,
		Messenger:  cn.messenger,
		Bus:        cn.bus,
		Wrappers:   cn.wrapperChannel,
		Forward:    cn.forwardCreate,
	})

	cn.modules = module.NewProvider(cfg.Modules.Directory, downloader, cn.bus)
	cn.modules.Provide("bus", cn.bus)
	cn.modules.Provide("queries", cn.queries)
	cn.modules.Provide("messenger", cn.messenger)
	cn.modules.Provide("kvdb", cn.db)
	cn.modules.Provide("registry", cn.registry)
	cn.modules.Provide("services", cn.services)
	cn.modules.Provide("nodes", cn.nodes)

	cn.registerHandlers()
	cn.registerListeners()
	return cn, nil
}

func (cn *CloudNet) nodeId() string {
	return cn.config.Node.UniqueId
}

// clusterNodes returns the configured cluster nodes ordered by section id
func (cn *CloudNet) clusterNodes() []*config.ClusterNodeConfig {
	ids := make([]int, 0, len(cn.config.Nodes))
	for id := range cn.config.Nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	res := make([]*config.ClusterNodeConfig, 0, len(ids))
	for _, id := range ids {
		res = append(res, cn.config.Nodes[id])
	}
	return res
}

func (cn *CloudNet) networkOptions() network.Options {
	return network.Options{Token: cn.config.Node.Token, Compress: cn.config.Node.CompressFormat}
}

// wrapperAddress returns the address wrappers connect to over the configured transport
func (cn *CloudNet) wrapperAddress() string {
	nodeConfig := cn.config.Node
	switch cn.config.Wrapper.Transport {
	case "kcp":
		return net.JoinHostPort(nodeConfig.Ip, fmt.Sprint(nodeConfig.KCPPort))
	case "websocket", "ws":
		return net.JoinHostPort(nodeConfig.HTTPIp, fmt.Sprint(nodeConfig.HTTPPort))
	default:
		return net.JoinHostPort(nodeConfig.Ip, fmt.Sprint(nodeConfig.Port))
	}
}

func (cn *CloudNet) newWrapperLauncher() *cloudservice.WrapperLauncher {
	wrapperConfig := cn.config.Wrapper
	javaCommand := wrapperConfig.JavaCommand
	if javaCommand == "" {
		javaCommand = cn.config.Node.JavaCommand
	}
	command := strings.Fields(cn.config.Node.WrapperCommand)
	command = append(command,
		"--transport", wrapperConfig.Transport,
		"--log", wrapperConfig.LogLevel,
		"--logfile", wrapperConfig.LogFile,
		"--java", javaCommand,
	)
	if wrapperConfig.LogStderr {
		command = append(command, "--logstderr")
	}
	storageConfig := cn.config.Storage
	storageDir, err := filepath.Abs(storageConfig.Directory)
	if err != nil {
		storageDir = storageConfig.Directory
	}
	return &cloudservice.WrapperLauncher{
		Command:     command,
		NodeAddress: cn.wrapperAddress(),
		Token:       cn.config.Node.Token,
		Compress:    cn.config.Node.CompressFormat,
		StorageDir:  storageDir,
		MongoName:   storageConfig.MongoName,
		MongoURL:    storageConfig.Url,
		MongoDB:     storageConfig.DB,
	}
}

// channels returns the channels to wrappers and nodes, one per peer
func (cn *CloudNet) channels() []*network.Channel {
	chs := cn.server.Channels()
	cn.peerLock.RLock()
	for _, client := range cn.peers {
		if ch := client.Channel(); ch != nil {
			chs = append(chs, ch)
		}
	}
	cn.peerLock.RUnlock()
	return chs
}

func (cn *CloudNet) wrapperChannel(serviceName string) *network.Channel {
	ch := cn.server.ChannelOf(serviceName)
	if ch == nil || ch.Peer().Type != network.PEER_WRAPPER {
		return nil
	}
	return ch
}

// nodeChannel returns the channel to the cluster node, dialed by either side
func (cn *CloudNet) nodeChannel(uniqueId string) *network.Channel {
	cn.peerLock.RLock()
	client := cn.peers[uniqueId]
	cn.peerLock.RUnlock()
	if client != nil {
		return client.Channel()
	}
	ch := cn.server.ChannelOf(uniqueId)
	if ch == nil || ch.Peer().Type != network.PEER_NODE {
		return nil
	}
	return ch
}

func (cn *CloudNet) forwardCreate(nodeId string, task *service.ServiceTask) (service.ServiceInfoSnapshot, error) {
	return query.SendCallablePacket(cn.queries, cn.nodeChannel(nodeId), consts.NODE_SUB_CHANNEL, consts.OP_CREATE_SERVICE,
		document.Of("task", map[string]interface{}(task.ToDocument())), service.ServiceInfoSnapshotFromDocument).
		GetErr(consts.QUERY_DEFAULT_TIMEOUT)
}

func (cn *CloudNet) start() error {
	nodeConfig := cn.config.Node
	listenAddr := net.JoinHostPort(nodeConfig.BindIp, fmt.Sprint(nodeConfig.Port))
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", listenAddr)
	}
	cnlog.Infof("node %s listening on %s", nodeConfig.UniqueId, listenAddr)
	go cn.server.Serve(ln)

	if nodeConfig.KCPPort != 0 {
		kcpAddr := net.JoinHostPort(nodeConfig.BindIp, fmt.Sprint(nodeConfig.KCPPort))
		kcpLn, err := netutil.ListenKCP(kcpAddr)
		if err != nil {
			return errors.Wrapf(err, "listen kcp on %s", kcpAddr)
		}
		cnlog.Infof("node %s listening on kcp %s", nodeConfig.UniqueId, kcpAddr)
		go cn.server.ServeKCP(kcpLn)
	}
	binutil.SetupHTTPServer(nodeConfig.HTTPIp, nodeConfig.HTTPPort, cn.server.WebSocketHandler())

	cn.dialClusterNodes()
	cn.nodes.StartCollecting(cn.ctx, consts.NODE_INFO_UPDATE_INTERVAL)
	opmon.StartDumping(consts.OPMON_DUMP_INTERVAL)
	return cn.loadModules()
}

// dialClusterNodes connects to the configured nodes whose unique id sorts after the local one,
// so that every pair of nodes shares exactly one channel
func (cn *CloudNet) dialClusterNodes() {
	local := cn.nodeId()
	for _, nc := range cn.clusterNodes() {
		if nc.UniqueId <= local {
			continue
		}
		client := network.NewClient("tcp", nc.Address, cn.networkOptions(), network.AuthInfo{
			Type:          network.PEER_NODE,
			Name:          local,
			UniqueId:      local,
			Subscriptions: []string{consts.INTERNAL_CHANNEL},
		}, cn.dispatcher)
		client.AddConnectListener(cn.onNodeConnected)
		cn.peerLock.Lock()
		cn.peers[nc.UniqueId] = client
		cn.peerLock.Unlock()
		go client.Run()
	}
}

func (cn *CloudNet) loadModules() error {
	descriptors, err := module.FindDescriptors(cn.config.Modules.Directory)
	if err != nil {
		return errors.Wrap(err, "find modules")
	}
	if len(descriptors) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(cn.ctx, consts.MODULE_DOWNLOAD_TIMEOUT)
	defer cancel()
	if err := cn.modules.LoadModules(ctx, descriptors); err != nil {
		return err
	}
	return cn.modules.StartAll()
}

func (cn *CloudNet) run() {
	cn.runState.Store(rsRunning)
	timer.AddTimer(consts.NODE_HEARTBEAT_CHECK_INTERVAL, cn.checkHeartbeats)
	timer.AddTimer(consts.NODE_HEARTBEAT_CHECK_INTERVAL, cn.ensureMinServiceCount)
	timer.AddTimer(consts.NODE_INFO_UPDATE_INTERVAL, cn.publishNodeSnapshot)

	ticker := time.NewTicker(consts.NODE_TICK_INTERVAL)
	defer ticker.Stop()
	// here begins the main loop of the node
	for range ticker.C {
		if cn.runState.Load() == rsTerminating {
			cn.doTerminate()
			return
		}
		timer.Tick()
		// after firing timers, check the posted functions
		post.Tick()
	}
}

func (cn *CloudNet) terminate() {
	cn.runState.Store(rsTerminating)
}

func (cn *CloudNet) doTerminate() {
	post.Tick()

	cn.services.StopAll()
	cn.modules.StopAll()

	cn.peerLock.Lock()
	for _, client := range cn.peers {
		client.Close()
	}
	cn.peerLock.Unlock()
	cn.server.Close()
	cn.cancel()

	async.Shutdown()
	cn.storage.Close()
	cn.db.Close()
	cn.db.WaitTerminated()
	opmon.Dump()

	cnlog.Infof("node %s terminated", cn.nodeId())
	cn.runState.Store(rsTerminated)
	cn.terminated.Signal()
}

func (cn *CloudNet) checkHeartbeats() {
	now := time.Now()
	cn.nodes.CheckTimeouts(now, consts.NODE_TIMEOUT)
	async.Run(_JOB_GROUP_SERVICES, func() {
		cn.services.CheckHeartbeats(now)
	})
}

func (cn *CloudNet) publishNodeSnapshot() {
	snapshot := cn.nodes.LocalSnapshot()
	if _, err := cn.messenger.SendChannelMessage(consts.INTERNAL_CHANNEL, consts.MSG_NODE_SNAPSHOT, snapshot.ToDocument()); err != nil {
		cnlog.Warnf("publish snapshot of node %s failed: %v", cn.nodeId(), err)
	}
}

// isHeadNode checks if the local node has the lowest unique id of the online nodes.
// Only the head node starts services for tasks below their minimum service count.
func (cn *CloudNet) isHeadNode() bool {
	for _, s := range cn.nodes.Nodes() {
		if s.Online && s.Node.UniqueId < cn.nodeId() {
			return false
		}
	}
	return true
}

// clusterServiceCount counts the services of the task hosted anywhere in the cluster
func (cn *CloudNet) clusterServiceCount(taskName string) int {
	n := len(cn.services.GetCloudServicesByTask(taskName))
	cn.clusterLock.RLock()
	for _, s := range cn.clusterServices {
		if s.ServiceId.TaskName == taskName {
			n++
		}
	}
	cn.clusterLock.RUnlock()
	return n
}

func (cn *CloudNet) ensureMinServiceCount() {
	if cn.runState.Load() != rsRunning || !cn.isHeadNode() {
		return
	}
	tasks := cn.registry.Tasks()
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	for _, task := range tasks {
		missing := task.MinServiceCount - cn.clusterServiceCount(task.Name)
		for i := 0; i < missing; i++ {
			s, err := cn.services.CreateCloudService(task)
			if err != nil {
				cnlog.Warnf("task %s needs %d more services: %v", task.Name, missing-i, err)
				break
			}
			if s.ServiceId.NodeUniqueId != cn.nodeId() {
				continue
			}
			id := s.ServiceId.UniqueId
			async.Run(_JOB_GROUP_SERVICES, func() {
				if err := cn.services.StartCloudService(id); err != nil {
					cnlog.Errorf("start %s: %v", id, err)
				}
			})
		}
	}
}

// updateClusterService records a snapshot broadcast by another node
func (cn *CloudNet) updateClusterService(s service.ServiceInfoSnapshot) {
	if s.ServiceId.NodeUniqueId == cn.nodeId() {
		return
	}
	cn.clusterLock.Lock()
	if s.LifeCycle == service.DELETED {
		delete(cn.clusterServices, s.ServiceId.UniqueId)
	} else {
		cn.clusterServices[s.ServiceId.UniqueId] = s
	}
	cn.clusterLock.Unlock()
}

// forgetClusterNode drops the services of a node that disconnected
func (cn *CloudNet) forgetClusterNode(uniqueId string) {
	cn.nodes.SetOffline(uniqueId)
	cn.clusterLock.Lock()
	for id, s := range cn.clusterServices {
		if s.ServiceId.NodeUniqueId == uniqueId {
			delete(cn.clusterServices, id)
		}
	}
	cn.clusterLock.Unlock()
}

// allServices returns the services of the whole cluster sorted by task and id
func (cn *CloudNet) allServices() []service.ServiceInfoSnapshot {
	res := cn.services.GetCloudServices()
	cn.clusterLock.RLock()
	for _, s := range cn.clusterServices {
		res = append(res, s.Clone())
	}
	cn.clusterLock.RUnlock()
	sort.Slice(res, func(i, j int) bool {
		if res[i].ServiceId.TaskName != res[j].ServiceId.TaskName {
			return res[i].ServiceId.TaskName < res[j].ServiceId.TaskName
		}
		return res[i].ServiceId.TaskServiceId < res[j].ServiceId.TaskServiceId
	})
	return res
}

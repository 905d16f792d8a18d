package main

import (
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bmizerany/assert"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cloudservice"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/config"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/event"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/messenger"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/module/types"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/network"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/query"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
	"github.com/JavaProjektDEV/CloudNet-v3/ext/bridge"
)

type fakeProcess struct {
	done     chan struct{}
	stopOnce sync.Once
}

func (p *fakeProcess) Pid() int              { return 4711 }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) Kill() error           { return p.Stop(0) }

func (p *fakeProcess) Stop(time.Duration) error {
	p.stopOnce.Do(func() { close(p.done) })
	return nil
}

type fakeLauncher struct{}

func (fakeLauncher) Launch(cfg service.ServiceConfiguration, workDir string) (cloudservice.ServiceProcess, error) {
	return &fakeProcess{done: make(chan struct{})}, nil
}

func newTestCloudNet(t *testing.T, uniqueId string, maxMemoryMB int, nodes map[int]*config.ClusterNodeConfig) (*CloudNet, string) {
	dir := t.TempDir()
	templates := filepath.Join(dir, "templates")
	assert.Equal(t, nil, os.MkdirAll(filepath.Join(templates, "Lobby", "default"), 0755))
	assert.Equal(t, nil, os.WriteFile(filepath.Join(templates, "Lobby", "default", "server.properties"), []byte("motd=Lobby\n"), 0644))

	cfg := &config.CloudNetConfig{
		Node: config.NodeConfig{
			UniqueId:       uniqueId,
			Ip:             "127.0.0.1",
			BindIp:         "127.0.0.1",
			MaxMemoryMB:    maxMemoryMB,
			Token:          "secret",
			ServicesDir:    filepath.Join(dir, "services"),
			WrapperCommand: "cloudnet-wrapper",
		},
		Wrapper: config.WrapperConfig{Transport: "tcp", LogLevel: "debug"},
		Nodes:   nodes,
		Storage: config.StorageConfig{Directory: templates},
		KVDB:    config.KVDBConfig{Type: "memory"},
		Modules: config.ModulesConfig{Directory: filepath.Join(dir, "modules")},
	}
	cn, err := newCloudNet(cfg, fakeLauncher{})
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go cn.server.Serve(ln)
	t.Cleanup(func() {
		cn.services.StopAll()
		cn.peerLock.Lock()
		for _, client := range cn.peers {
			client.Close()
		}
		cn.peerLock.Unlock()
		cn.server.Close()
		cn.db.Close()
	})
	return cn, ln.Addr().String()
}

func addLobbyTask(t *testing.T, cn *CloudNet, minServiceCount int) *service.ServiceTask {
	group := service.NewGroupConfiguration("Lobby")
	group.AddTemplate(service.NewServiceTemplate("Lobby", "default", "local"))
	assert.Equal(t, nil, cn.registry.AddGroup(group))
	task := &service.ServiceTask{
		Name:            "Lobby",
		Groups:          []string{"Lobby"},
		Process:         service.ProcessConfiguration{Environment: service.MINECRAFT_SERVER, MaxHeapMemoryMB: 256},
		MinServiceCount: minServiceCount,
	}
	assert.Equal(t, nil, cn.registry.AddTask(task))
	return task
}

// connect authenticates a peer on the node and returns its client, channel and query provider
func connect(t *testing.T, addr string, auth network.AuthInfo) (*network.Client, *network.Channel, *query.Provider) {
	qp := query.NewProvider()
	dispatcher := network.NewDispatcher()
	qp.Attach(dispatcher)
	client := network.NewClient("tcp", addr, network.Options{Token: "secret"}, auth, dispatcher)
	go client.Run()
	t.Cleanup(client.Close)
	ch, err := client.WaitConnected(5 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return client, ch, qp
}

func waitFor(t *testing.T, what string, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func documentMapper(doc document.Document) (document.Document, error) {
	return doc, nil
}

func call(t *testing.T, qp *query.Provider, ch *network.Channel, op string, args document.Document) document.Document {
	res, err := query.SendCallablePacket(qp, ch, consts.NODE_SUB_CHANNEL, op, args, documentMapper).GetErr(5 * time.Second)
	if err != nil {
		t.Fatalf("%s: %v", op, err)
	}
	return res
}

func TestNodeQueries(t *testing.T) {
	cn, addr := newTestCloudNet(t, "Node-1", 2048, nil)
	addLobbyTask(t, cn, 0)
	_, ch, qp := connect(t, addr, network.AuthInfo{Type: network.PEER_BRIDGE, Name: "Proxy-1"})

	created, err := service.ServiceInfoSnapshotFromDocument(call(t, qp, ch, consts.OP_CREATE_SERVICE, document.Of("taskName", "Lobby")))
	assert.Equal(t, nil, err)
	assert.Equal(t, "Lobby-1", created.Name())
	assert.Equal(t, service.PREPARED, created.LifeCycle)

	services := call(t, qp, ch, consts.OP_GET_CLOUD_SERVICES, document.Of("group", "Lobby")).GetDocuments("services")
	assert.Equal(t, 1, len(services))
	services = call(t, qp, ch, consts.OP_GET_CLOUD_SERVICES, document.Of("task", "Proxy")).GetDocuments("services")
	assert.Equal(t, 0, len(services))

	cfg, err := service.ServiceConfigurationFromDocument(call(t, qp, ch, consts.OP_GET_SERVICE_CONFIGURATION, document.Of("name", "Lobby-1")))
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(cfg.Templates))

	nodes := call(t, qp, ch, consts.OP_GET_NODE_SNAPSHOTS, document.New()).GetDocuments("nodes")
	assert.Equal(t, 1, len(nodes))
	assert.Equal(t, "Node-1", nodes[0].GetString("uniqueId"))
	assert.Equal(t, 256, nodes[0].GetInt("reservedMemory"))

	_, err = query.SendCallablePacket(qp, ch, consts.NODE_SUB_CHANNEL, consts.OP_START_SERVICE,
		document.Of("uniqueId", "not-a-uuid"), documentMapper).GetErr(5 * time.Second)
	assert.NotEqual(t, nil, err)

	id := created.ServiceId.UniqueId.String()
	call(t, qp, ch, consts.OP_DELETE_SERVICE, document.Of("uniqueId", id))
	assert.Equal(t, 0, len(cn.services.GetCloudServices()))
}

func TestWrapperHeartbeat(t *testing.T) {
	cn, addr := newTestCloudNet(t, "Node-1", 2048, nil)
	addLobbyTask(t, cn, 0)
	_, ch, qp := connect(t, addr, network.AuthInfo{Type: network.PEER_BRIDGE, Name: "Proxy-1"})

	created, _ := service.ServiceInfoSnapshotFromDocument(call(t, qp, ch, consts.OP_CREATE_SERVICE, document.Of("taskName", "Lobby")))
	id := created.ServiceId.UniqueId
	call(t, qp, ch, consts.OP_START_SERVICE, document.Of("uniqueId", id.String()))
	s, _ := cn.services.GetCloudService(id)
	assert.Equal(t, service.RUNNING, s.LifeCycle)
	assert.T(t, cn.services.GetCloudServicesByTask("Lobby")[0].Configuration.Port > 0)

	wrapperClient, wrapper, _ := connect(t, addr, network.AuthInfo{Type: network.PEER_WRAPPER, Name: "Lobby-1"})
	waitFor(t, "wrapper connected", func() bool {
		s, _ := cn.services.GetCloudService(id)
		return s.Connected
	})

	heartbeat := s.WithProcessSnapshot(service.ProcessSnapshot{Pid: 4711, Threads: 12}, time.Now())
	heartbeat.Properties = document.Of("Online-Count", 7)
	m := messenger.NewMessenger(messenger.ChannelSourceFunc(func() []*network.Channel { return nil }), event.NewBus())
	assert.Equal(t, nil, m.SendChannelMessageTo(wrapper, consts.INTERNAL_CHANNEL, consts.MSG_UPDATE_SERVICE_INFO, heartbeat.ToDocument()))
	waitFor(t, "heartbeat", func() bool {
		s, _ := cn.services.GetCloudService(id)
		return s.ProcessSnapshot.Threads == 12
	})
	s, _ = cn.services.GetCloudService(id)
	assert.Equal(t, 7, s.Properties.GetInt("Online-Count"))

	wrapperClient.Close()
	waitFor(t, "wrapper disconnected", func() bool {
		s, _ := cn.services.GetCloudService(id)
		return !s.Connected
	})

	call(t, qp, ch, consts.OP_STOP_CLOUD_SERVICE, document.Of("uniqueId", id.String()))
	_, ok := cn.services.GetCloudService(id)
	assert.Equal(t, false, ok)
}

func TestForwardCreateToClusterNode(t *testing.T) {
	node2, addr2 := newTestCloudNet(t, "Node-2", 8192, nil)
	node1, _ := newTestCloudNet(t, "Node-1", 512, map[int]*config.ClusterNodeConfig{
		1: {UniqueId: "Node-2", Address: addr2, MaxMemoryMB: 8192},
	})
	task := addLobbyTask(t, node1, 0)
	addLobbyTask(t, node2, 0)

	node1.dialClusterNodes()
	waitFor(t, "Node-2 online", func() bool {
		s, ok := node1.nodes.Node("Node-2")
		return ok && s.Online
	})
	waitFor(t, "Node-1 online", func() bool {
		s, ok := node2.nodes.Node("Node-1")
		return ok && s.Online
	})

	s, err := node1.services.CreateCloudService(task)
	assert.Equal(t, nil, err)
	assert.Equal(t, "Node-2", s.ServiceId.NodeUniqueId)
	assert.Equal(t, 0, len(node1.services.GetCloudServices()))
	assert.Equal(t, 1, len(node2.services.GetCloudServices()))
	waitFor(t, "cluster service", func() bool {
		return node1.clusterServiceCount("Lobby") == 1
	})
	assert.Equal(t, 1, len(node1.allServices()))
}

func TestEnsureMinServiceCount(t *testing.T) {
	cn, _ := newTestCloudNet(t, "Node-1", 2048, nil)
	addLobbyTask(t, cn, 2)
	cn.runState.Store(rsRunning)
	assert.T(t, cn.isHeadNode())

	cn.ensureMinServiceCount()
	assert.Equal(t, 2, len(cn.services.GetCloudServicesByTask("Lobby")))
	waitFor(t, "services running", func() bool {
		for _, s := range cn.services.GetCloudServicesByTask("Lobby") {
			if s.LifeCycle != service.RUNNING {
				return false
			}
		}
		return true
	})

	cn.ensureMinServiceCount()
	assert.Equal(t, 2, len(cn.services.GetCloudServicesByTask("Lobby")))
}

func TestBridgeModule(t *testing.T) {
	cn, addr := newTestCloudNet(t, "Node-1", 2048, nil)
	dir := filepath.Join(cn.config.Modules.Directory, "bridge")
	assert.Equal(t, nil, os.MkdirAll(dir, 0755))
	descriptor := "group: eu.cloudnetservice\nname: CloudNet-Bridge\nversion: 3.0.0\nmain: " + bridge.MODULE_MAIN + "\n"
	assert.Equal(t, nil, os.WriteFile(filepath.Join(dir, "module.yml"), []byte(descriptor), 0644))
	assert.Equal(t, nil, cn.loadModules())

	info, ok := cn.modules.Module("CloudNet-Bridge")
	assert.T(t, ok)
	assert.Equal(t, types.STARTED, info.LifeCycle)

	_, ch, qp := connect(t, addr, network.AuthInfo{Type: network.PEER_BRIDGE, Name: "Proxy-1"})
	res, err := query.SendCallablePacket(qp, ch, bridge.PLAYER_API_SUB_CHANNEL, bridge.OP_GET_ONLINE_COUNT, document.New(),
		documentMapper).GetErr(5 * time.Second)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, res.GetInt("onlineCount"))

	cn.modules.StopAll()
	_, err = query.SendCallablePacket(qp, ch, bridge.PLAYER_API_SUB_CHANNEL, bridge.OP_GET_ONLINE_COUNT, document.New(),
		documentMapper).GetErr(5 * time.Second)
	assert.NotEqual(t, nil, err)
}

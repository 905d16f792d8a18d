package main

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	timer "github.com/xiaonanln/goTimer"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/event"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/messenger"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/network"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/post"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/process"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/query"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/storage"
)

const (
	rsNotRunning = iota
	rsRunning
	rsTerminating
	rsTerminated
)

var ack = document.Of("success", true)

// serviceProcess is the application process a wrapper supervises
type serviceProcess interface {
	Pid() int
	Done() <-chan struct{}
	Stop(grace time.Duration) error
	Snapshot() (service.ProcessSnapshot, error)
}

type processStarter func(cfg service.ServiceConfiguration, dir string) (serviceProcess, error)

// javaStarter starts the default command line of the service environment
func javaStarter(javaCommand string, output io.Writer) processStarter {
	return func(cfg service.ServiceConfiguration, dir string) (serviceProcess, error) {
		p, err := process.Start(process.Options{
			Dir:     dir,
			Command: cfg.Process.Command(javaCommand),
			Output:  output,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

type wrapperOptions struct {
	Transport    string
	NodeAddress  string
	Token        string
	Compress     string
	WorkDir      string
	Storage      *storage.Registry
	StartProcess processStarter
}

// Wrapper runs one service: it keeps the channel to the node, starts the service process and
// reports its state until the process exits or the node stops the service
type Wrapper struct {
	opts      wrapperOptions
	client    *network.Client
	queries   *query.Provider
	messenger *messenger.Messenger

	lock       sync.Mutex
	cfg        service.ServiceConfiguration
	proc       serviceProcess
	startTime  time.Time
	properties document.Document

	runState   xnsyncutil.AtomicInt
	terminated *xnsyncutil.OneTimeCond
}

func newWrapper(cfg service.ServiceConfiguration, opts wrapperOptions) *Wrapper {
	w := &Wrapper{
		opts:       opts,
		cfg:        cfg,
		queries:    query.NewProvider(),
		properties: document.New(),
		terminated: xnsyncutil.NewOneTimeCond(),
	}
	dispatcher := network.NewDispatcher()
	w.queries.Attach(dispatcher)
	w.messenger = messenger.NewMessenger(messenger.ChannelSourceFunc(w.channels), event.NewBus())
	w.messenger.Attach(dispatcher)

	w.client = network.NewClient(opts.Transport, opts.NodeAddress, network.Options{Token: opts.Token, Compress: opts.Compress},
		network.AuthInfo{
			Type:          network.PEER_WRAPPER,
			Name:          cfg.ServiceId.Name(),
			UniqueId:      cfg.ServiceId.UniqueId.String(),
			Subscriptions: []string{consts.INTERNAL_CHANNEL},
		}, dispatcher)

	w.queries.RegisterHandler(consts.WRAPPER_SUB_CHANNEL, consts.OP_INCLUDE_TEMPLATE, w.handleIncludeTemplate)
	w.queries.RegisterHandler(consts.WRAPPER_SUB_CHANNEL, consts.OP_GET_SERVICE_INFO_SNAPSHOT, w.handleGetServiceInfoSnapshot)
	w.queries.RegisterHandler(consts.WRAPPER_SUB_CHANNEL, consts.OP_STOP_SERVICE, w.handleStop)
	return w
}

func (w *Wrapper) name() string {
	return w.cfg.ServiceId.Name()
}

func (w *Wrapper) channels() []*network.Channel {
	if ch := w.client.Channel(); ch != nil {
		return []*network.Channel{ch}
	}
	return nil
}

// start connects to the node and starts the service process
func (w *Wrapper) start() error {
	go w.client.Run()
	if _, err := w.client.WaitConnected(consts.WRAPPER_CONNECT_TIMEOUT); err != nil {
		return err
	}

	proc, err := w.opts.StartProcess(w.config(), w.opts.WorkDir)
	if err != nil {
		return errors.Wrapf(err, "start process of %s", w.name())
	}
	w.lock.Lock()
	w.proc = proc
	w.startTime = time.Now()
	w.lock.Unlock()
	cnlog.Infof("service %s started with pid %d", w.name(), proc.Pid())

	go func() {
		<-proc.Done()
		cnlog.Infof("process %d of %s exited", proc.Pid(), w.name())
		w.terminate()
	}()
	return nil
}

func (w *Wrapper) run() {
	w.runState.Store(rsRunning)
	w.sendHeartbeat()
	timer.AddTimer(consts.WRAPPER_HEARTBEAT_INTERVAL, w.sendHeartbeat)

	ticker := time.NewTicker(consts.NODE_TICK_INTERVAL)
	defer ticker.Stop()
	for range ticker.C {
		if w.runState.Load() == rsTerminating {
			w.doTerminate()
			return
		}
		timer.Tick()
		post.Tick()
	}
}

func (w *Wrapper) terminate() {
	if w.runState.Load() < rsTerminating {
		w.runState.Store(rsTerminating)
	}
}

func (w *Wrapper) doTerminate() {
	post.Tick()

	w.lock.Lock()
	proc := w.proc
	w.lock.Unlock()
	if proc != nil {
		if err := proc.Stop(consts.WRAPPER_PROCESS_STOP_GRACE_PERIOD); err != nil {
			cnlog.Errorf("stop process of %s: %v", w.name(), err)
		}
	}

	w.client.Close()
	if w.opts.Storage != nil {
		w.opts.Storage.Close()
	}
	cnlog.Infof("wrapper of %s terminated", w.name())
	w.runState.Store(rsTerminated)
	w.terminated.Signal()
}

func (w *Wrapper) config() service.ServiceConfiguration {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.cfg.Clone()
}

// snapshot describes the running service as the node tracks it
func (w *Wrapper) snapshot() service.ServiceInfoSnapshot {
	w.lock.Lock()
	proc := w.proc
	s := service.ServiceInfoSnapshot{
		CreationTime:  w.startTime,
		ServiceId:     w.cfg.ServiceId,
		Address:       service.HostAndPort{Port: w.cfg.Port},
		Connected:     true,
		LifeCycle:     service.RUNNING,
		Properties:    w.properties.Clone(),
		LastUpdate:    time.Now(),
		Configuration: w.cfg.Clone(),
	}
	w.lock.Unlock()

	if proc != nil {
		ps, err := proc.Snapshot()
		if err != nil {
			cnlog.Debugf("snapshot of process %d: %v", proc.Pid(), err)
		}
		ps.Pid = proc.Pid()
		ps.MaxHeapMemory = int64(s.Configuration.Process.MaxHeapMemoryMB) << 20
		s.ProcessSnapshot = ps
	}
	return s
}

func (w *Wrapper) sendHeartbeat() {
	ch := w.client.Channel()
	if ch == nil {
		cnlog.Debugf("%s is not connected, heartbeat skipped", w.name())
		return
	}
	if err := w.messenger.SendChannelMessageTo(ch, consts.INTERNAL_CHANNEL, consts.MSG_UPDATE_SERVICE_INFO, w.snapshot().ToDocument()); err != nil {
		cnlog.Warnf("heartbeat of %s failed: %v", w.name(), err)
	}
}

// handleIncludeTemplate copies a template into the working directory of the running service
func (w *Wrapper) handleIncludeTemplate(ch *network.Channel, args document.Document) (document.Document, error) {
	template := service.ServiceTemplateFromDocument(args.GetDocument("template"))
	if w.opts.Storage == nil {
		return nil, errors.Errorf("%s has no template storage", w.name())
	}
	if err := w.opts.Storage.CopyTemplate(template, w.opts.WorkDir); err != nil {
		return nil, errors.Wrapf(err, "include %s", template)
	}
	w.lock.Lock()
	w.cfg.AddTemplate(template)
	w.lock.Unlock()
	cnlog.Infof("template %s included into %s", template, w.name())
	return ack, nil
}

func (w *Wrapper) handleGetServiceInfoSnapshot(ch *network.Channel, args document.Document) (document.Document, error) {
	return w.snapshot().ToDocument(), nil
}

func (w *Wrapper) handleStop(ch *network.Channel, args document.Document) (document.Document, error) {
	cnlog.Infof("node %s stops %s", ch.Name(), w.name())
	w.terminate()
	return ack, nil
}

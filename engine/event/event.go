// Package event implements the in-process event bus of the node and the wrapper.
//
// Events are one tagged type: Kind selects which payload fields are set. Listeners are registered
// per kind and called in registration order. A listener may set Cancelled; Publish stops calling
// further listeners of a cancelled event and reports the cancellation to the publisher.
package event

import (
	"fmt"
	"sync"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/module/types"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

// Kind is the type tag of an event
type Kind int

// Event kinds
const (
	// SERVICE_REGISTER is published after a service was created. Payload: Service
	SERVICE_REGISTER Kind = iota + 1
	// SERVICE_LIFECYCLE is published on every lifecycle transition. Payload: Service, PreviousLifeCycle
	SERVICE_LIFECYCLE
	// SERVICE_INFO_UPDATE is published when a service snapshot changed without transition. Payload: Service
	SERVICE_INFO_UPDATE
	// CHANNEL_MESSAGE_RECEIVE is published for received messenger messages. Payload: Message
	CHANNEL_MESSAGE_RECEIVE
	// MODULE_PRE_INSTALL_DEPENDENCY is published before a module artifact is downloaded, cancellable.
	// Payload: Module, Dependency
	MODULE_PRE_INSTALL_DEPENDENCY
	// MODULE_LIFECYCLE is published on every module transition. Payload: Module, ModuleLifeCycle
	MODULE_LIFECYCLE
	// CHANNEL_AUTH is published when a peer authenticated. Payload: Peer
	CHANNEL_AUTH
	// CHANNEL_CLOSE is published when a peer disconnected. Payload: Peer
	CHANNEL_CLOSE
)

var kindNames = map[Kind]string{
	SERVICE_REGISTER:              "ServiceRegister",
	SERVICE_LIFECYCLE:             "ServiceLifecycle",
	SERVICE_INFO_UPDATE:           "ServiceInfoUpdate",
	CHANNEL_MESSAGE_RECEIVE:       "ChannelMessageReceive",
	MODULE_PRE_INSTALL_DEPENDENCY: "ModulePreInstallDependency",
	MODULE_LIFECYCLE:              "ModuleLifecycle",
	CHANNEL_AUTH:                  "ChannelAuth",
	CHANNEL_CLOSE:                 "ChannelClose",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ChannelMessage is a received messenger message
type ChannelMessage struct {
	Sender  string
	Channel string
	Message string
	Data    document.Document
}

// Event is a published event. Only the payload fields of its Kind are set.
type Event struct {
	Kind      Kind
	Cancelled bool

	Service           *service.ServiceInfoSnapshot
	PreviousLifeCycle service.ServiceLifeCycle

	Message *ChannelMessage

	Module          *types.ModuleDescriptor
	ModuleLifeCycle types.ModuleLifeCycle
	Dependency      *types.ModuleDependency

	Peer string
}

// Listener handles events of one kind
type Listener func(ev *Event)

type registration struct {
	id       uint64
	listener Listener
}

// Bus dispatches events to the listeners of their kind
type Bus struct {
	lock      sync.RWMutex
	nextId    uint64
	listeners map[Kind][]registration
}

// NewBus creates an event bus without listeners
func NewBus() *Bus {
	return &Bus{listeners: map[Kind][]registration{}}
}

// Register adds a listener of the kind and returns the function removing it
func (b *Bus) Register(kind Kind, listener Listener) (unregister func()) {
	b.lock.Lock()
	b.nextId++
	id := b.nextId
	b.listeners[kind] = append(b.listeners[kind], registration{id, listener})
	b.lock.Unlock()

	return func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		regs := b.listeners[kind]
		for i, r := range regs {
			if r.id == id {
				b.listeners[kind] = append(regs[:i:i], regs[i+1:]...)
				return
			}
		}
	}
}

// Publish calls the listeners of the event kind in registration order and returns whether the
// event was cancelled. A panicking listener is logged and skipped.
func (b *Bus) Publish(ev *Event) (cancelled bool) {
	b.lock.RLock()
	regs := b.listeners[ev.Kind]
	b.lock.RUnlock()

	for _, r := range regs {
		callListener(r.listener, ev)
		if ev.Cancelled {
			cnlog.Debugf("event %s cancelled", ev.Kind)
			break
		}
	}
	return ev.Cancelled
}

func callListener(l Listener, ev *Event) {
	defer func() {
		if err := recover(); err != nil {
			cnlog.TraceError("listener of %s paniced: %v", ev.Kind, err)
		}
	}()
	l(ev)
}

package network

import (
	"strings"
	"sync"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/proto"
)

// PacketListener handles packets received on a channel
type PacketListener interface {
	HandlePacket(ch *Channel, packet *proto.Packet)
}

// PacketListenerFunc adapts a function to PacketListener
type PacketListenerFunc func(ch *Channel, packet *proto.Packet)

// HandlePacket calls f(ch, packet)
func (f PacketListenerFunc) HandlePacket(ch *Channel, packet *proto.Packet) {
	f(ch, packet)
}

type prefixListener struct {
	prefix   string
	listener PacketListener
}

// Dispatcher routes received packets to listeners by packet channel name.
// Exact channel listeners are tried before prefix listeners.
type Dispatcher struct {
	lock            sync.RWMutex
	listeners       map[string][]PacketListener
	prefixListeners []prefixListener
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: map[string][]PacketListener{}}
}

// AddListener registers a listener for packets of the channel name
func (d *Dispatcher) AddListener(channel string, l PacketListener) {
	d.lock.Lock()
	d.listeners[channel] = append(d.listeners[channel], l)
	d.lock.Unlock()
}

// AddPrefixListener registers a listener for packets whose channel name starts with prefix
func (d *Dispatcher) AddPrefixListener(prefix string, l PacketListener) {
	d.lock.Lock()
	d.prefixListeners = append(d.prefixListeners, prefixListener{prefix, l})
	d.lock.Unlock()
}

// Dispatch calls every matching listener in registration order
func (d *Dispatcher) Dispatch(ch *Channel, packet *proto.Packet) {
	d.lock.RLock()
	listeners := d.listeners[packet.Channel]
	var prefixed []PacketListener
	for _, pl := range d.prefixListeners {
		if strings.HasPrefix(packet.Channel, pl.prefix) {
			prefixed = append(prefixed, pl.listener)
		}
	}
	d.lock.RUnlock()

	if len(listeners) == 0 && len(prefixed) == 0 {
		cnlog.Debugf("%s: no listener for %s", ch, packet)
		return
	}
	for _, l := range listeners {
		l.HandlePacket(ch, packet)
	}
	for _, l := range prefixed {
		l.HandlePacket(ch, packet)
	}
}

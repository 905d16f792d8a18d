// Package network maintains the authenticated channels between nodes, wrappers and bridges.
//
// A Channel is one connection. Sent packets are queued and written by a single send routine, so
// packets sent on one channel keep their order. Received packets are dispatched on the async job
// group of the channel: in arrival order for one channel, concurrently across channels.
package network

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/async"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/netutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/proto"
)

// Channel is an authenticated connection to a peer
type Channel struct {
	id         string
	peer       AuthInfo
	conn       *proto.CloudNetConnection
	dispatcher *Dispatcher
	sendQueue  *xnsyncutil.SyncQueue
	closed     xnsyncutil.AtomicBool
	closeOnce  sync.Once
	sendDone   *xnsyncutil.OneTimeCond

	lock           sync.Mutex
	subscriptions  common.StringSet
	closeListeners []func(ch *Channel)
	closeFired     bool
}

// NewChannel creates a channel on the connection. Start must be called to begin sending and receiving.
func NewChannel(conn net.Conn, peer AuthInfo, dispatcher *Dispatcher, snappy bool, compressFormat string) *Channel {
	return newChannel(proto.NewCloudNetConnection(netutil.NewConnection(conn, snappy), compressFormat), peer, dispatcher)
}

func newChannel(conn *proto.CloudNetConnection, peer AuthInfo, dispatcher *Dispatcher) *Channel {
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}
	ch := &Channel{
		id:            uuid.NewString(),
		peer:          peer,
		conn:          conn,
		dispatcher:    dispatcher,
		sendQueue:     xnsyncutil.NewSyncQueue(),
		sendDone:      xnsyncutil.NewOneTimeCond(),
		subscriptions: common.StringSet{},
	}
	for _, s := range peer.Subscriptions {
		ch.subscriptions.Add(s)
	}
	return ch
}

// Start starts the send routine and the receive routine
func (ch *Channel) Start() {
	go ch.sendRoutine()
	go ch.recvRoutine()
}

// ID returns the connection id of the channel
func (ch *Channel) ID() string {
	return ch.id
}

// Name returns the name the peer authenticated with
func (ch *Channel) Name() string {
	return ch.peer.Name
}

// Peer returns the auth info of the peer
func (ch *Channel) Peer() AuthInfo {
	return ch.peer
}

// Dispatcher returns the dispatcher of received packets
func (ch *Channel) Dispatcher() *Dispatcher {
	return ch.dispatcher
}

// SendPacket queues the packet for sending
func (ch *Channel) SendPacket(packet *proto.Packet) error {
	if ch.closed.Load() {
		return common.ErrChannelClosed
	}
	ch.sendQueue.Push(packet)
	return nil
}

// Subscribe adds a messenger channel subscription
func (ch *Channel) Subscribe(channelName string) {
	ch.lock.Lock()
	ch.subscriptions.Add(channelName)
	ch.lock.Unlock()
}

// Unsubscribe removes a messenger channel subscription
func (ch *Channel) Unsubscribe(channelName string) {
	ch.lock.Lock()
	ch.subscriptions.Remove(channelName)
	ch.lock.Unlock()
}

// IsSubscribed checks if the peer subscribed the messenger channel
func (ch *Channel) IsSubscribed(channelName string) bool {
	ch.lock.Lock()
	defer ch.lock.Unlock()
	return ch.subscriptions.Contains(channelName)
}

// AddCloseListener registers a callback fired once the channel is closed.
// If the close listeners were already fired the callback runs immediately.
func (ch *Channel) AddCloseListener(cb func(ch *Channel)) {
	ch.lock.Lock()
	if ch.closeFired {
		ch.lock.Unlock()
		cb(ch)
		return
	}
	ch.closeListeners = append(ch.closeListeners, cb)
	ch.lock.Unlock()
}

// IsClosed returns if the channel is closed
func (ch *Channel) IsClosed() bool {
	return ch.closed.Load()
}

// Close closes the connection. The receive routine quits and fires the close listeners
// after the packets received before are handled.
func (ch *Channel) Close() {
	ch.closeOnce.Do(func() {
		ch.closed.Store(true)
		ch.sendQueue.Close()
		ch.conn.Close()
		cnlog.Debugf("%s closed", ch)
	})
}

func (ch *Channel) fireClosed() {
	ch.lock.Lock()
	ch.closeFired = true
	listeners := ch.closeListeners
	ch.closeListeners = nil
	ch.lock.Unlock()

	for _, cb := range listeners {
		cb(ch)
	}
}

// WaitSent waits until the send routine quit after Close
func (ch *Channel) WaitSent() {
	ch.sendDone.Wait()
}

func (ch *Channel) jobGroup() string {
	return "channel:" + ch.id
}

func (ch *Channel) sendRoutine() {
	defer ch.sendDone.Signal()
	for {
		item := ch.sendQueue.Pop()
		if item == nil {
			return
		}
		if err := ch.conn.SendPacket(item.(*proto.Packet)); err != nil {
			cnlog.Warnf("%s send failed: %v", ch, err)
			go ch.Close()
			return
		}
		if ch.sendQueue.Len() == 0 {
			if err := ch.conn.Flush("sendRoutine"); err != nil {
				go ch.Close()
				return
			}
		}
	}
}

func (ch *Channel) recvRoutine() {
	defer func() {
		ch.Close()
		async.Run(ch.jobGroup(), ch.fireClosed)
		async.CloseGroup(ch.jobGroup())
	}()
	for {
		packet, err := ch.conn.Recv()
		if err != nil {
			if !netutil.IsConnectionError(err) && !ch.closed.Load() {
				cnlog.Errorf("%s recv failed: %v", ch, err)
			}
			return
		}
		async.Run(ch.jobGroup(), func() {
			ch.dispatcher.Dispatch(ch, packet)
		})
	}
}

func (ch *Channel) String() string {
	return fmt.Sprintf("Channel<%s/%s@%s>", ch.peer.Type, ch.peer.Name, ch.conn.RemoteAddr())
}

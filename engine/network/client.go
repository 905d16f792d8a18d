package network

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/netutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/proto"
)

// Client keeps an authenticated channel to a node, reconnecting when it drops
type Client struct {
	transport  string
	addr       string
	options    Options
	auth       AuthInfo
	dispatcher *Dispatcher
	stop       chan struct{}
	stopOnce   sync.Once

	lock             sync.RWMutex
	channel          *Channel
	serverId         string
	connectListeners []func(ch *Channel)
}

// NewClient creates a client connecting to addr over the transport (tcp, kcp or websocket)
func NewClient(transport string, addr string, options Options, auth AuthInfo, dispatcher *Dispatcher) *Client {
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}
	auth.Token = options.Token
	return &Client{
		transport:  transport,
		addr:       addr,
		options:    options,
		auth:       auth,
		dispatcher: dispatcher,
		stop:       make(chan struct{}),
	}
}

// Dispatcher returns the dispatcher of received packets
func (c *Client) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// AddConnectListener registers a callback fired after every successful (re)connect
func (c *Client) AddConnectListener(cb func(ch *Channel)) {
	c.lock.Lock()
	c.connectListeners = append(c.connectListeners, cb)
	c.lock.Unlock()
}

// Run connects and reconnects until Close is called
func (c *Client) Run() {
	netutil.ServeForever("client@"+c.addr, c.stop, c.connectOnce)
}

// Channel returns the current channel, or nil if not connected
func (c *Client) Channel() *Channel {
	c.lock.RLock()
	ch := c.channel
	c.lock.RUnlock()
	return ch
}

// ServerId returns the unique id of the node which accepted the last connection
func (c *Client) ServerId() string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.serverId
}

// SendPacket sends the packet on the current channel
func (c *Client) SendPacket(packet *proto.Packet) error {
	ch := c.Channel()
	if ch == nil {
		return common.ErrChannelClosed
	}
	return ch.SendPacket(packet)
}

// WaitConnected waits up to timeout for an authenticated channel
func (c *Client) WaitConnected(timeout time.Duration) (*Channel, error) {
	deadline := time.Now().Add(timeout)
	for {
		if ch := c.Channel(); ch != nil && !ch.IsClosed() {
			return ch, nil
		}
		if time.Now().After(deadline) {
			return nil, errors.Wrapf(common.ErrTimeout, "connect to %s", c.addr)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Close stops reconnecting and closes the current channel
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	if ch := c.Channel(); ch != nil {
		ch.Close()
	}
}

func (c *Client) connectOnce() error {
	conn, err := netutil.Dial(c.transport, c.addr)
	if err != nil {
		return err
	}
	cc := proto.NewCloudNetConnection(netutil.NewConnection(conn, c.options.Snappy), c.options.Compress)
	if err := cc.SendPacket(proto.NewPacket(consts.AUTH_CHANNEL, c.auth.ToDocument(), nil)); err != nil {
		cc.Close()
		return err
	}
	if err := cc.Flush("auth"); err != nil {
		cc.Close()
		return err
	}

	timer := time.AfterFunc(consts.AUTH_TIMEOUT, func() {
		cc.Close()
	})
	packet, err := cc.Recv()
	timer.Stop()
	if err != nil {
		cc.Close()
		return errors.Wrap(err, "auth")
	}
	result := authResultFromDocument(packet.Header)
	if packet.Channel != consts.AUTH_CHANNEL || !result.Accepted {
		cc.Close()
		return errors.Errorf("auth rejected by %s: %s", c.addr, result.Reason)
	}

	peer := AuthInfo{Type: PEER_NODE, Name: result.ServerId, UniqueId: result.ServerId}
	ch := newChannel(cc, peer, c.dispatcher)

	c.lock.Lock()
	c.channel = ch
	c.serverId = result.ServerId
	listeners := append([]func(*Channel){}, c.connectListeners...)
	c.lock.Unlock()

	select {
	case <-c.stop:
		ch.Close()
	default:
	}

	cnlog.Infof("connected to node %s at %s", result.ServerId, c.addr)
	for _, cb := range listeners {
		cb(ch)
	}

	go ch.sendRoutine()
	ch.recvRoutine()

	c.lock.Lock()
	if c.channel == ch {
		c.channel = nil
	}
	c.lock.Unlock()
	return common.ErrChannelClosed
}

package network

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xtaci/kcp-go"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/netutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/proto"
	"golang.org/x/net/websocket"
)

// Options configures the connections of servers and clients
type Options struct {
	// Token must match between the peers if it is not empty
	Token string
	// Snappy enables snappy stream compression
	Snappy bool
	// Compress is the payload compression of large frames: lz4, zstd or none
	Compress string
}

// Server accepts and authenticates channels
type Server struct {
	id         string
	options    Options
	dispatcher *Dispatcher

	lock          sync.RWMutex
	channels      map[string]*Channel
	authListeners []func(ch *Channel)
	listeners     []net.Listener
}

// NewServer creates a server. id is the unique id of the local node sent to accepted peers.
func NewServer(id string, options Options, dispatcher *Dispatcher) *Server {
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}
	return &Server{
		id:         id,
		options:    options,
		dispatcher: dispatcher,
		channels:   map[string]*Channel{},
	}
}

// Dispatcher returns the dispatcher shared by all channels of the server
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// AddAuthListener registers a callback fired for every newly authenticated channel
func (s *Server) AddAuthListener(cb func(ch *Channel)) {
	s.lock.Lock()
	s.authListeners = append(s.authListeners, cb)
	s.lock.Unlock()
}

// Serve accepts TCP connections from the listener until it is closed
func (s *Server) Serve(ln net.Listener) error {
	s.lock.Lock()
	s.listeners = append(s.listeners, ln)
	s.lock.Unlock()
	return netutil.ServeTCP(ln, s)
}

// ServeKCP accepts KCP sessions from the listener until it is closed
func (s *Server) ServeKCP(ln *kcp.Listener) error {
	s.lock.Lock()
	s.listeners = append(s.listeners, ln)
	s.lock.Unlock()
	return netutil.ServeKCP(ln, s)
}

// WebSocketHandler returns the handler serving channels over websocket connections
func (s *Server) WebSocketHandler() websocket.Handler {
	return netutil.WebSocketHandler(s)
}

// Channels returns the authenticated channels ordered by name
func (s *Server) Channels() []*Channel {
	s.lock.RLock()
	chs := make([]*Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		chs = append(chs, ch)
	}
	s.lock.RUnlock()
	sort.Slice(chs, func(i, j int) bool {
		return chs[i].Name() < chs[j].Name()
	})
	return chs
}

// ChannelOf returns the channel of the peer name, or nil
func (s *Server) ChannelOf(name string) *Channel {
	s.lock.RLock()
	ch := s.channels[name]
	s.lock.RUnlock()
	return ch
}

// Close closes the listeners and all channels
func (s *Server) Close() {
	s.lock.Lock()
	listeners := s.listeners
	s.listeners = nil
	s.lock.Unlock()
	for _, ln := range listeners {
		ln.Close()
	}
	for _, ch := range s.Channels() {
		ch.Close()
	}
}

// ServeTCPConnection authenticates the connection and serves it until it is closed
func (s *Server) ServeTCPConnection(conn net.Conn) {
	cc := proto.NewCloudNetConnection(netutil.NewConnection(conn, s.options.Snappy), s.options.Compress)
	peer, err := s.authenticate(cc)
	if err != nil {
		cnlog.Warnf("auth of %s failed: %v", conn.RemoteAddr(), err)
		cc.Close()
		return
	}

	ch := newChannel(cc, peer, s.dispatcher)
	s.lock.Lock()
	s.channels[peer.Name] = ch
	authListeners := append([]func(*Channel){}, s.authListeners...)
	s.lock.Unlock()

	ch.AddCloseListener(func(ch *Channel) {
		s.lock.Lock()
		if s.channels[ch.Name()] == ch {
			delete(s.channels, ch.Name())
		}
		s.lock.Unlock()
		cnlog.Infof("%s disconnected", ch)
	})
	cnlog.Infof("%s authenticated", ch)
	for _, cb := range authListeners {
		cb(ch)
	}

	go ch.sendRoutine()
	ch.recvRoutine()
}

func (s *Server) authenticate(cc *proto.CloudNetConnection) (AuthInfo, error) {
	timer := time.AfterFunc(consts.AUTH_TIMEOUT, func() {
		cc.Close()
	})
	packet, err := cc.Recv()
	timer.Stop()
	if err != nil {
		return AuthInfo{}, err
	}

	reject := func(reason string) (AuthInfo, error) {
		cc.SendPacket(proto.NewPacket(consts.AUTH_CHANNEL, authResult{Reason: reason, ServerId: s.id}.ToDocument(), nil))
		cc.Flush("auth")
		return AuthInfo{}, errors.New(reason)
	}

	if packet.Channel != consts.AUTH_CHANNEL {
		return reject("first packet must be an auth packet")
	}
	peer := AuthInfoFromDocument(packet.Header)
	if s.options.Token != "" && peer.Token != s.options.Token {
		return reject("invalid auth token")
	}
	peer.Token = ""
	if peer.Name == "" {
		return reject("missing peer name")
	}
	if old := s.ChannelOf(peer.Name); old != nil && !old.IsClosed() {
		return reject("peer " + peer.Name + " is already connected")
	}

	if err := cc.SendPacket(proto.NewPacket(consts.AUTH_CHANNEL, authResult{Accepted: true, ServerId: s.id}.ToDocument(), nil)); err != nil {
		return AuthInfo{}, err
	}
	return peer, cc.Flush("auth")
}

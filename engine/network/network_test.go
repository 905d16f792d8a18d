package network

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/proto"
	"github.com/bmizerany/assert"
)

func startServer(t *testing.T, options Options) (*Server, string) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer("Node-1", options, nil)
	go s.Serve(ln)
	t.Cleanup(s.Close)
	return s, ln.Addr().String()
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClientServerRoundTrip(t *testing.T) {
	s, addr := startServer(t, Options{Token: "secret", Compress: "lz4"})

	var lock sync.Mutex
	var received []int
	s.Dispatcher().AddListener("test", PacketListenerFunc(func(ch *Channel, p *proto.Packet) {
		lock.Lock()
		received = append(received, p.Header.GetInt("seq"))
		lock.Unlock()
		ch.SendPacket(proto.NewPacket("echo", p.Header, p.Body))
	}))

	echoed := make(chan int, 100)
	c := NewClient("tcp", addr, Options{Token: "secret", Compress: "lz4"},
		AuthInfo{Type: PEER_WRAPPER, Name: "Lobby-1", Subscriptions: []string{"cloudnet_internal"}}, nil)
	c.Dispatcher().AddListener("echo", PacketListenerFunc(func(ch *Channel, p *proto.Packet) {
		echoed <- p.Header.GetInt("seq")
	}))
	go c.Run()
	defer c.Close()

	ch, err := c.WaitConnected(5 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "Node-1", ch.Name())
	assert.Equal(t, "Node-1", c.ServerId())

	for i := 0; i < 100; i++ {
		c.SendPacket(proto.NewPacket("test", document.Of("seq", i), make([]byte, i*100)))
	}
	for i := 0; i < 100; i++ {
		select {
		case seq := <-echoed:
			assert.Equal(t, i, seq)
		case <-time.After(5 * time.Second):
			t.Fatalf("echo %d not received", i)
		}
	}

	waitFor(t, func() bool { return s.ChannelOf("Lobby-1") != nil })
	server := s.ChannelOf("Lobby-1")
	assert.Equal(t, true, server.IsSubscribed("cloudnet_internal"))
	assert.Equal(t, "", server.Peer().Token)
	assert.Equal(t, 1, len(s.Channels()))
}

func TestAuthRejected(t *testing.T) {
	s, addr := startServer(t, Options{Token: "secret"})
	c := NewClient("tcp", addr, Options{Token: "wrong"}, AuthInfo{Type: PEER_WRAPPER, Name: "Lobby-1"}, nil)
	err := c.connectOnce()
	assert.NotEqual(t, nil, err)
	assert.Equal(t, 0, len(s.Channels()))
}

func TestCloseListenersFiredOnce(t *testing.T) {
	s, addr := startServer(t, Options{})
	closed := make(chan string, 10)
	s.AddAuthListener(func(ch *Channel) {
		ch.AddCloseListener(func(ch *Channel) {
			closed <- ch.Name()
		})
	})

	c := NewClient("tcp", addr, Options{}, AuthInfo{Type: PEER_WRAPPER, Name: "Proxy-1"}, nil)
	go c.Run()
	if _, err := c.WaitConnected(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.ChannelOf("Proxy-1") != nil })
	c.Close()

	select {
	case name := <-closed:
		assert.Equal(t, "Proxy-1", name)
	case <-time.After(5 * time.Second):
		t.Fatalf("close listener not fired")
	}
	waitFor(t, func() bool { return s.ChannelOf("Proxy-1") == nil })
	select {
	case <-closed:
		t.Fatalf("close listener fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendOnClosedChannel(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	ch := NewChannel(c1, AuthInfo{Name: "x"}, nil, false, "")
	ch.Start()
	ch.Close()
	assert.Equal(t, common.ErrChannelClosed, ch.SendPacket(proto.NewPacket("test", nil, nil)))

	fired := make(chan bool, 1)
	ch.AddCloseListener(func(*Channel) { fired <- true })
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatalf("close listener not fired")
	}
}

func TestDispatcherPrefix(t *testing.T) {
	d := NewDispatcher()
	var got []string
	d.AddListener("msg:a", PacketListenerFunc(func(ch *Channel, p *proto.Packet) { got = append(got, "exact") }))
	d.AddPrefixListener("msg:", PacketListenerFunc(func(ch *Channel, p *proto.Packet) { got = append(got, "prefix") }))
	d.Dispatch(nil, proto.NewPacket("msg:a", nil, nil))
	d.Dispatch(nil, proto.NewPacket("msg:b", nil, nil))
	assert.Equal(t, []string{"exact", "prefix", "prefix"}, got)
}

func TestAuthInfoDocument(t *testing.T) {
	ai := AuthInfo{Type: PEER_BRIDGE, Name: "Proxy-1", UniqueId: "u", Subscriptions: []string{"a", "b"}}
	back := AuthInfoFromDocument(ai.ToDocument())
	assert.Equal(t, ai.Name, back.Name)
	assert.Equal(t, ai.Subscriptions, back.Subscriptions)
}

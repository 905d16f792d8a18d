package messenger

import (
	"net"
	"testing"
	"time"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/event"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/network"
	"github.com/bmizerany/assert"
)

type pipePeer struct {
	local  *network.Channel
	remote *network.Channel
	bus    *event.Bus
}

func newPipePeer(t *testing.T, name string, subscriptions ...string) *pipePeer {
	c1, c2 := net.Pipe()
	p := &pipePeer{bus: event.NewBus()}
	remoteDispatcher := network.NewDispatcher()
	NewMessenger(ChannelSourceFunc(func() []*network.Channel { return nil }), p.bus).Attach(remoteDispatcher)
	p.local = network.NewChannel(c1, network.AuthInfo{Name: name, Subscriptions: subscriptions}, nil, false, "")
	p.remote = network.NewChannel(c2, network.AuthInfo{Name: "node"}, remoteDispatcher, false, "")
	p.local.Start()
	p.remote.Start()
	t.Cleanup(func() {
		p.local.Close()
		p.remote.Close()
	})
	return p
}

func TestSendToSubscribers(t *testing.T) {
	lobby := newPipePeer(t, "Lobby-1", "cloudnet_bridge_player_channel")
	proxy := newPipePeer(t, "Proxy-1")

	received := make(chan *event.ChannelMessage, 10)
	lobbyMessenger := NewMessenger(nil, lobby.bus)
	lobbyMessenger.Listen("cloudnet_bridge_player_channel", "broadcast_message", func(msg *event.ChannelMessage) {
		received <- msg
	})
	proxy.bus.Register(event.CHANNEL_MESSAGE_RECEIVE, func(ev *event.Event) {
		t.Errorf("unsubscribed peer received %s", ev.Message.Message)
	})

	m := NewMessenger(ChannelSourceFunc(func() []*network.Channel {
		return []*network.Channel{lobby.local, proxy.local}
	}), event.NewBus())

	for i := 0; i < 5; i++ {
		n, err := m.SendChannelMessage("cloudnet_bridge_player_channel", "broadcast_message", document.Of("i", i))
		assert.Equal(t, nil, err)
		assert.Equal(t, 1, n)
	}

	for i := 0; i < 5; i++ {
		select {
		case msg := <-received:
			assert.Equal(t, i, msg.Data.GetInt("i"))
			assert.Equal(t, "node", msg.Sender)
		case <-time.After(5 * time.Second):
			t.Fatalf("message %d not received", i)
		}
	}
}

func TestSendToTarget(t *testing.T) {
	proxy := newPipePeer(t, "Proxy-1")
	received := make(chan string, 1)
	NewMessenger(nil, proxy.bus).Listen("cloudnet_internal", "", func(msg *event.ChannelMessage) {
		received <- msg.Message
	})

	m := NewMessenger(ChannelSourceFunc(func() []*network.Channel { return nil }), event.NewBus())
	assert.Equal(t, nil, m.SendChannelMessageTo(proxy.local, "cloudnet_internal", "stop", nil))
	select {
	case name := <-received:
		assert.Equal(t, "stop", name)
	case <-time.After(5 * time.Second):
		t.Fatalf("message not received")
	}
	assert.NotEqual(t, nil, m.SendChannelMessageTo(nil, "cloudnet_internal", "stop", nil))
}

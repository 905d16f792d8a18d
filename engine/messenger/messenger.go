// Package messenger sends fire-and-forget messages to peers subscribed to a messenger channel.
//
// A message is a packet without correlation id on the wire channel "msg:<channel>" with the
// message name in its header and the payload document as body. Received messages are published
// on the event bus as CHANNEL_MESSAGE_RECEIVE.
package messenger

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/event"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/network"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/proto"
)

// ChannelSource lists the channels messages can be sent to
type ChannelSource interface {
	Channels() []*network.Channel
}

// ChannelSourceFunc adapts a function to ChannelSource
type ChannelSourceFunc func() []*network.Channel

// Channels calls f()
func (f ChannelSourceFunc) Channels() []*network.Channel {
	return f()
}

// Messenger sends and receives channel messages
type Messenger struct {
	source ChannelSource
	bus    *event.Bus
}

// NewMessenger creates a messenger sending to the channels of source and publishing received messages on bus
func NewMessenger(source ChannelSource, bus *event.Bus) *Messenger {
	return &Messenger{source: source, bus: bus}
}

// Attach makes the messenger receive the messages of the dispatcher
func (m *Messenger) Attach(dispatcher *network.Dispatcher) {
	dispatcher.AddPrefixListener(consts.MESSENGER_CHANNEL_PREFIX, m)
}

func newMessagePacket(channelName, messageName string, payload document.Document) (*proto.Packet, error) {
	body, err := document.Encode(document.MSG_PACKER, payload, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "encode message %s/%s", channelName, messageName)
	}
	return proto.NewPacket(consts.MESSENGER_CHANNEL_PREFIX+channelName, document.Of(proto.HEADER_MESSAGE_NAME, messageName), body), nil
}

// SendChannelMessage sends the message to every peer subscribed to channelName and returns the number of receivers
func (m *Messenger) SendChannelMessage(channelName, messageName string, payload document.Document) (int, error) {
	packet, err := newMessagePacket(channelName, messageName, payload)
	if err != nil {
		return 0, err
	}
	var n int
	for _, ch := range m.source.Channels() {
		if !ch.IsSubscribed(channelName) {
			continue
		}
		if err := ch.SendPacket(packet); err != nil {
			cnlog.Debugf("message %s/%s to %s dropped: %v", channelName, messageName, ch, err)
			continue
		}
		n++
	}
	return n, nil
}

// SendChannelMessageTo sends the message to one peer, regardless of its subscriptions
func (m *Messenger) SendChannelMessageTo(target *network.Channel, channelName, messageName string, payload document.Document) error {
	if target == nil {
		return common.ErrChannelClosed
	}
	packet, err := newMessagePacket(channelName, messageName, payload)
	if err != nil {
		return err
	}
	return target.SendPacket(packet)
}

// Listen registers fn for the messages of channelName and messageName (empty messageName matches all)
func (m *Messenger) Listen(channelName, messageName string, fn func(msg *event.ChannelMessage)) (unregister func()) {
	return m.bus.Register(event.CHANNEL_MESSAGE_RECEIVE, func(ev *event.Event) {
		msg := ev.Message
		if msg.Channel == channelName && (messageName == "" || msg.Message == messageName) {
			fn(msg)
		}
	})
}

// HandlePacket publishes received messages on the event bus
func (m *Messenger) HandlePacket(ch *network.Channel, packet *proto.Packet) {
	if packet.HasID {
		cnlog.Warnf("%s: messenger packet with correlation id: %s", ch, packet)
		return
	}
	data, err := packet.BodyDocument()
	if err != nil {
		cnlog.Warnf("%s: malformed message %s: %v", ch, packet, err)
		return
	}
	m.bus.Publish(&event.Event{
		Kind: event.CHANNEL_MESSAGE_RECEIVE,
		Message: &event.ChannelMessage{
			Sender:  ch.Name(),
			Channel: strings.TrimPrefix(packet.Channel, consts.MESSENGER_CHANNEL_PREFIX),
			Message: packet.Header.GetString(proto.HEADER_MESSAGE_NAME),
			Data:    data,
		},
	})
}

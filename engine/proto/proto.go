// Package proto defines the packets exchanged between nodes and wrappers and their wire layout.
//
// A packet is encoded into one netutil frame:
//
//	flags:u8 | channel:varstr | [id:u64] | header:varbytes | body:varbytes
//
// flags bit 0 marks a present correlation id, bit 1 marks a response. The header is a document
// packed with document.MSG_PACKER.
package proto

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/netutil"
)

const (
	flagHasID    = 1 << 0
	flagResponse = 1 << 1
)

// Header keys shared by all layers
const (
	HEADER_SUB_CHANNEL  = "subChannel"
	HEADER_OPERATION    = "operation"
	HEADER_MESSAGE_NAME = "messageName"
	HEADER_ERROR        = "error"
)

// Packet is one addressed message on a channel
type Packet struct {
	Channel  string
	HasID    bool
	ID       uint64
	Response bool
	Header   document.Document
	Body     []byte
}

// NewPacket creates a one-way packet
func NewPacket(channel string, header document.Document, body []byte) *Packet {
	return &Packet{Channel: channel, Header: header, Body: body}
}

// NewQueryPacket creates a request packet carrying a correlation id
func NewQueryPacket(channel string, id uint64, header document.Document, body []byte) *Packet {
	return &Packet{Channel: channel, HasID: true, ID: id, Header: header, Body: body}
}

// NewResponse creates the response packet of a request
func (p *Packet) NewResponse(header document.Document, body []byte) *Packet {
	return &Packet{Channel: p.Channel, HasID: true, ID: p.ID, Response: true, Header: header, Body: body}
}

// BodyDocument decodes the body as a document. An empty body is an empty document.
func (p *Packet) BodyDocument() (document.Document, error) {
	if len(p.Body) == 0 {
		return document.New(), nil
	}
	return document.Decode(document.MSG_PACKER, p.Body)
}

func (p *Packet) String() string {
	if p.HasID {
		return fmt.Sprintf("Packet<%s#%d response=%v %v %dB>", p.Channel, p.ID, p.Response, p.Header, len(p.Body))
	}
	return fmt.Sprintf("Packet<%s %v %dB>", p.Channel, p.Header, len(p.Body))
}

// Encode writes the packet to a netutil frame
func (p *Packet) Encode(np *netutil.Packet) error {
	var flags byte
	if p.HasID {
		flags |= flagHasID
	}
	if p.Response {
		flags |= flagResponse
	}
	np.AppendByte(flags)
	np.AppendVarStr(p.Channel)
	if p.HasID {
		np.AppendUint64(p.ID)
	}
	header, err := document.Encode(document.MSG_PACKER, p.Header, nil)
	if err != nil {
		return errors.Wrapf(err, "encode header of %s", p.Channel)
	}
	np.AppendVarBytes(header)
	np.AppendVarBytes(p.Body)
	return nil
}

// Decode reads a packet from a netutil frame. The returned packet does not share memory with the frame.
func Decode(np *netutil.Packet) (p *Packet, err error) {
	defer func() {
		if perr := recover(); perr != nil {
			p = nil
			err = errors.Errorf("malformed packet: %v", perr)
		}
	}()

	p = &Packet{}
	flags := np.ReadOneByte()
	p.HasID = flags&flagHasID != 0
	p.Response = flags&flagResponse != 0
	p.Channel = np.ReadVarStr()
	if p.HasID {
		p.ID = np.ReadUint64()
	}
	if p.Header, err = document.Decode(document.MSG_PACKER, np.ReadVarBytes()); err != nil {
		return nil, err
	}
	body := np.ReadVarBytes()
	if len(body) > 0 {
		p.Body = append([]byte(nil), body...)
	}
	return p, nil
}

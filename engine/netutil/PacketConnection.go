package netutil

import (
	"fmt"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnioutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/netutil/compress"
)

// PacketConnection is a connection that send and receive length framed packets upon a network stream connection.
//
// SendPacket is safe for concurrent use; RecvPacket must be called from one goroutine.
type PacketConnection struct {
	conn       Connection
	compressor compress.Compressor

	sendLock    sync.Mutex
	sendScratch []byte
	sizeBuf     [_SIZE_FIELD_SIZE]byte
	recvScratch []byte
}

// NewPacketConnection creates a packet connection based on network connection.
// compressor may be nil to disable payload compression.
func NewPacketConnection(conn Connection, compressor compress.Compressor) *PacketConnection {
	return &PacketConnection{
		conn:       conn,
		compressor: compressor,
	}
}

// NewPacket allocates a new packet (usually for sending)
func (pc *PacketConnection) NewPacket() *Packet {
	return NewPacket()
}

// SendPacket writes the packet frame to the connection buffer, Flush must be called to write buffered data out
func (pc *PacketConnection) SendPacket(packet *Packet) error {
	pc.sendLock.Lock()
	data := packet.frame(pc.compressor, pc.sendScratch)
	if consts.DEBUG_PACKETS {
		cnlog.Debugf("%s SEND PACKET: %d bytes", pc, len(data))
	}
	err := cnioutil.WriteAll(pc.conn, data)
	if len(data) > 0 && &data[0] != &packet.bytes[0] {
		pc.sendScratch = data[:0]
	}
	pc.sendLock.Unlock()
	return err
}

// Flush writes all buffered data to the network
func (pc *PacketConnection) Flush() error {
	pc.sendLock.Lock()
	err := pc.conn.Flush()
	pc.sendLock.Unlock()
	return err
}

// RecvPacket receives the next packet
func (pc *PacketConnection) RecvPacket() (*Packet, error) {
	if err := cnioutil.ReadAll(pc.conn, pc.sizeBuf[:]); err != nil {
		return nil, err
	}

	sizeField := NETWORK_ENDIAN.Uint32(pc.sizeBuf[:])
	compressed := sizeField&_PAYLOAD_COMPRESSED_BIT_MASK != 0
	payloadLen := sizeField & _PAYLOAD_LEN_MASK
	if payloadLen > consts.MAX_PACKET_PAYLOAD_LENGTH {
		return nil, errors.Errorf("packet payload too large: %d", payloadLen)
	}

	if !compressed {
		packet := NewPacket()
		packet.bytes = append(packet.bytes, make([]byte, payloadLen)...)
		if err := cnioutil.ReadAll(pc.conn, packet.bytes[_PREPAYLOAD_SIZE:]); err != nil {
			packet.Release()
			return nil, err
		}
		return packet, nil
	}

	if pc.compressor == nil {
		return nil, errors.Errorf("received compressed packet, but compression is disabled")
	}
	if cap(pc.recvScratch) < int(payloadLen) {
		pc.recvScratch = make([]byte, payloadLen)
	}
	buf := pc.recvScratch[:payloadLen]
	if err := cnioutil.ReadAll(pc.conn, buf); err != nil {
		return nil, err
	}

	packet := NewPacket()
	out, err := pc.compressor.Decompress(buf, packet.bytes)
	if err != nil {
		packet.Release()
		return nil, err
	}
	if len(out)-_PREPAYLOAD_SIZE > consts.MAX_PACKET_PAYLOAD_LENGTH {
		packet.Release()
		return nil, errors.Errorf("decompressed packet payload too large: %d", len(out)-_PREPAYLOAD_SIZE)
	}
	packet.bytes = out
	return packet, nil
}

// Close the connection
func (pc *PacketConnection) Close() error {
	return pc.conn.Close()
}

// RemoteAddr return the remote address
func (pc *PacketConnection) RemoteAddr() net.Addr {
	return pc.conn.RemoteAddr()
}

// LocalAddr returns the local address
func (pc *PacketConnection) LocalAddr() net.Addr {
	return pc.conn.LocalAddr()
}

func (pc *PacketConnection) String() string {
	return fmt.Sprintf("[%s >>> %s]", pc.LocalAddr(), pc.RemoteAddr())
}

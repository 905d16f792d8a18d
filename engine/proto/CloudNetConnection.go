package proto

import (
	"net"

	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/netutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/netutil/compress"
)

// CloudNetConnection sends and receives packets on a network connection
type CloudNetConnection struct {
	packetConn *netutil.PacketConnection
	closed     xnsyncutil.AtomicBool
}

// NewCloudNetConnection creates a CloudNetConnection on the network connection.
// compressFormat is lz4, zstd or empty for no payload compression.
func NewCloudNetConnection(conn netutil.Connection, compressFormat string) *CloudNetConnection {
	var compressor compress.Compressor
	if compressFormat != "" && compressFormat != "none" {
		var err error
		compressor, err = compress.NewCompressor(compressFormat)
		if err != nil {
			cnlog.Panicf("invalid compress format %s: %v", compressFormat, err)
		}
	}

	return &CloudNetConnection{
		packetConn: netutil.NewPacketConnection(conn, compressor),
	}
}

// SendPacket encodes and writes the packet to the send buffer
func (cc *CloudNetConnection) SendPacket(packet *Packet) error {
	np := netutil.NewPacket()
	defer np.Release()
	if err := packet.Encode(np); err != nil {
		return err
	}
	if consts.DEBUG_PACKETS {
		cnlog.Debugf("%s SEND %s", cc, packet)
	}
	return cc.packetConn.SendPacket(np)
}

// Flush writes buffered packets to the network
func (cc *CloudNetConnection) Flush(reason string) error {
	err := cc.packetConn.Flush()
	if err != nil && consts.DEBUG_PACKETS {
		cnlog.Debugf("%s flush (%s) failed: %v", cc, reason, err)
	}
	return err
}

// Recv receives the next packet
func (cc *CloudNetConnection) Recv() (*Packet, error) {
	np, err := cc.packetConn.RecvPacket()
	if err != nil {
		return nil, err
	}
	defer np.Release()
	packet, err := Decode(np)
	if err != nil {
		return nil, err
	}
	if consts.DEBUG_PACKETS {
		cnlog.Debugf("%s RECV %s", cc, packet)
	}
	return packet, nil
}

// Close the connection
func (cc *CloudNetConnection) Close() error {
	cc.closed.Store(true)
	return cc.packetConn.Close()
}

// IsClosed returns if the connection is closed
func (cc *CloudNetConnection) IsClosed() bool {
	return cc.closed.Load()
}

// RemoteAddr returns the remote address
func (cc *CloudNetConnection) RemoteAddr() net.Addr {
	return cc.packetConn.RemoteAddr()
}

// LocalAddr returns the local address
func (cc *CloudNetConnection) LocalAddr() net.Addr {
	return cc.packetConn.LocalAddr()
}

func (cc *CloudNetConnection) String() string {
	return cc.packetConn.String()
}

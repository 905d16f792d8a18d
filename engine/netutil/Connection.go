package netutil

import (
	"net"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/xiaonanln/netconnutil"
)

// Connection is a network stream connection with buffered writes
type Connection interface {
	netconnutil.FlushableConn
}

// NetConn wraps a net.Conn without write buffer as Connection
type NetConn struct {
	net.Conn
}

// Flush does nothing since writes are not buffered
func (n NetConn) Flush() error {
	return nil
}

// NewConnection wraps a raw network connection for channel usage: temporary errors are retried,
// optional snappy stream compression is applied, and reads and writes are buffered.
func NewConnection(conn net.Conn, snappy bool) Connection {
	conn = netconnutil.NewNoTempErrorConn(conn)
	if snappy {
		conn = netconnutil.NewSnappyConn(conn)
	}
	return netconnutil.NewBufferedConn(conn, consts.BUFFERED_READ_BUFFSIZE, consts.BUFFERED_WRITE_BUFFSIZE)
}

package netutil

import (
	"net"
	"time"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnioutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/xtaci/kcp-go"
)

const (
	_RESTART_TCP_SERVER_INTERVAL = 3 * time.Second
)

// TCPServerDelegate is the implementations that a TCP server should provide
type TCPServerDelegate interface {
	ServeTCPConnection(net.Conn)
}

// ServeTCPForever serves on specified address as TCP server, restarting the listener on failures
func ServeTCPForever(listenAddr string, delegate TCPServerDelegate) {
	for {
		err := serveTCPForeverOnce(listenAddr, delegate)
		cnlog.Errorf("server@%s failed with error: %v, will restart after %s", listenAddr, err, _RESTART_TCP_SERVER_INTERVAL)
		time.Sleep(_RESTART_TCP_SERVER_INTERVAL)
	}
}

func serveTCPForeverOnce(listenAddr string, delegate TCPServerDelegate) (err error) {
	defer func() {
		if perr := recover(); perr != nil {
			cnlog.TraceError("serveTCPForeverOnce: paniced with error %s", perr)
		}
	}()

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	return ServeTCP(ln, delegate)
}

// ServeTCP accepts connections from the listener until it fails or is closed
func ServeTCP(ln net.Listener, delegate TCPServerDelegate) error {
	cnlog.Infof("Listening on TCP: %s ...", ln.Addr())
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if cnioutil.IsTimeoutError(err) {
				continue
			} else {
				return err
			}
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetReadBuffer(consts.CHANNEL_READ_BUFFER_SIZE)
			tcpConn.SetWriteBuffer(consts.CHANNEL_WRITE_BUFFER_SIZE)
			tcpConn.SetNoDelay(consts.CHANNEL_SET_TCP_NO_DELAY)
		}
		cnlog.Debugf("Connection from: %s", conn.RemoteAddr())
		go delegate.ServeTCPConnection(conn)
	}
}

// ListenKCP creates a KCP listener on the address
func ListenKCP(listenAddr string) (*kcp.Listener, error) {
	ln, err := kcp.ListenWithOptions(listenAddr, nil, 10, 3)
	if err != nil {
		return nil, err
	}
	cnlog.Infof("Listening on KCP: %s ...", listenAddr)
	return ln, nil
}

// ServeKCP accepts KCP sessions from the listener until it fails or is closed
func ServeKCP(ln *kcp.Listener, delegate TCPServerDelegate) error {
	defer ln.Close()
	for {
		conn, err := ln.AcceptKCP()
		if err != nil {
			if cnioutil.IsTimeoutError(err) {
				continue
			}
			return err
		}
		setupKCPSession(conn)
		go delegate.ServeTCPConnection(conn)
	}
}

func setupKCPSession(conn *kcp.UDPSession) {
	conn.SetReadBuffer(consts.CHANNEL_READ_BUFFER_SIZE)
	conn.SetWriteBuffer(consts.CHANNEL_WRITE_BUFFER_SIZE)
	conn.SetStreamMode(true)
	conn.SetWriteDelay(true)
	conn.SetNoDelay(1, 10, 2, 1)
}

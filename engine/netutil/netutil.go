// Package netutil implements the low level stream framing of channels: connection wrappers,
// length framed packets with optional payload compression, and listeners/dialers for TCP, KCP and websockets.
package netutil

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/xtaci/kcp-go"
	"golang.org/x/net/websocket"
)

// IsConnectionError check if the error is a connection error (close)
func IsConnectionError(_err interface{}) bool {
	err, ok := _err.(error)
	if !ok {
		return false
	}

	err = errors.Cause(err)
	if err == io.EOF || err == io.ErrUnexpectedEOF || errors.Is(err, net.ErrClosed) {
		return true
	}

	neterr, ok := err.(net.Error)
	if !ok {
		return false
	}
	if neterr.Timeout() {
		return false
	}

	return true
}

// Dial connects to addr over the transport: tcp, kcp or websocket
func Dial(transport string, addr string) (net.Conn, error) {
	switch transport {
	case "", "tcp":
		return ConnectTCP(addr)
	case "kcp":
		return ConnectKCP(addr)
	case "websocket", "ws":
		return ConnectWebSocket(addr)
	default:
		return nil, errors.Errorf("unknown transport: %s", transport)
	}
}

// ConnectTCP connects to host:port in TCP
func ConnectTCP(addr string) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, consts.AUTH_TIMEOUT)
	if err != nil {
		return nil, err
	}
	tcpConn := conn.(*net.TCPConn)
	tcpConn.SetReadBuffer(consts.CHANNEL_READ_BUFFER_SIZE)
	tcpConn.SetWriteBuffer(consts.CHANNEL_WRITE_BUFFER_SIZE)
	tcpConn.SetNoDelay(consts.CHANNEL_SET_TCP_NO_DELAY)
	return conn, nil
}

// ConnectKCP connects to host:port in KCP
func ConnectKCP(addr string) (net.Conn, error) {
	conn, err := kcp.DialWithOptions(addr, nil, 10, 3)
	if err != nil {
		return nil, err
	}
	setupKCPSession(conn)
	return conn, nil
}

// ConnectWebSocket connects to the /ws endpoint of host:port
func ConnectWebSocket(addr string) (net.Conn, error) {
	conn, err := websocket.Dial(fmt.Sprintf("ws://%s/ws", addr), "", fmt.Sprintf("http://%s/", addr))
	if err != nil {
		return nil, err
	}
	conn.PayloadType = websocket.BinaryFrame
	return conn, nil
}

// WebSocketHandler adapts the delegate into a websocket handler, blocking until the connection is served
func WebSocketHandler(delegate TCPServerDelegate) websocket.Handler {
	return func(ws *websocket.Conn) {
		ws.PayloadType = websocket.BinaryFrame
		delegate.ServeTCPConnection(ws)
	}
}

// ServeForever runs the function repeatedly, restarting it after panics or returns.
// It stops when stop is closed.
func ServeForever(name string, stop <-chan struct{}, f func() error) {
	for {
		err := runServe(name, f)
		select {
		case <-stop:
			return
		default:
		}
		cnlog.Warnf("ServeForever: %s quited with error %v, restarting after %s", name, err, consts.RECONNECT_INTERVAL)
		select {
		case <-stop:
			return
		case <-time.After(consts.RECONNECT_INTERVAL):
		}
	}
}

func runServe(name string, f func() error) (err error) {
	defer func() {
		if perr := recover(); perr != nil {
			cnlog.TraceError("ServeForever: %s paniced with error %v", name, perr)
			err = errors.Errorf("panic: %v", perr)
		}
	}()
	return f()
}

package netutil

import (
	"bytes"
	"net"
	"testing"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnioutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/netutil/compress"
	"github.com/bmizerany/assert"
)

type testEchoTcpServer struct {
}

func (ts *testEchoTcpServer) ServeTCPConnection(conn net.Conn) {
	buf := make([]byte, 1024*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			cnioutil.WriteAll(conn, buf[:n])
		}

		if err != nil {
			if cnioutil.IsTimeoutError(err) {
				continue
			} else {
				cnlog.Debugf("read error: %s", err.Error())
				break
			}
		}
	}
}

func startEchoServer(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go ServeTCP(ln, &testEchoTcpServer{})
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestPacketReadWrite(t *testing.T) {
	p := NewPacket()
	defer p.Release()
	p.AppendByte(7)
	p.AppendBool(true)
	p.AppendUint16(0xBEEF)
	p.AppendUint32(123456)
	p.AppendUint64(1 << 40)
	p.AppendFloat64(3.5)
	p.AppendVarStr("cloudnet")
	p.AppendVarBytes([]byte{1, 2, 3})
	p.AppendStringList([]string{"Lobby", "Proxy"})

	assert.Equal(t, byte(7), p.ReadOneByte())
	assert.Equal(t, true, p.ReadBool())
	assert.Equal(t, uint16(0xBEEF), p.ReadUint16())
	assert.Equal(t, uint32(123456), p.ReadUint32())
	assert.Equal(t, uint64(1<<40), p.ReadUint64())
	assert.Equal(t, 3.5, p.ReadFloat64())
	assert.Equal(t, "cloudnet", p.ReadVarStr())
	assert.Equal(t, []byte{1, 2, 3}, p.ReadVarBytes())
	assert.Equal(t, []string{"Lobby", "Proxy"}, p.ReadStringList())
	assert.Equal(t, false, p.HasUnreadPayload())
}

func TestPacketUnderflowPanics(t *testing.T) {
	p := NewPacket()
	defer p.Release()
	p.AppendUint16(1)

	defer func() {
		assert.Equal(t, ErrPacketUnderflow, recover())
	}()
	p.ReadUint32()
	t.Fatalf("should not reach here")
}

func testPacketConnection(t *testing.T, compressor compress.Compressor, payload []byte) {
	addr := startEchoServer(t)
	conn, err := ConnectTCP(addr)
	if err != nil {
		t.Fatal(err)
	}
	pc := NewPacketConnection(NewConnection(conn, false), compressor)
	defer pc.Close()

	for i := 0; i < 10; i++ {
		p := NewPacketWithPayload(payload)
		p.AppendUint32(uint32(i))
		if err := pc.SendPacket(p); err != nil {
			t.Fatal(err)
		}
		p.Release()
	}
	if err := pc.Flush(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		p, err := pc.RecvPacket()
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, true, bytes.Equal(payload, p.ReadBytes(uint32(len(payload)))))
		assert.Equal(t, uint32(i), p.ReadUint32())
		p.Release()
	}
}

func TestPacketConnectionSmall(t *testing.T) {
	testPacketConnection(t, nil, []byte("hello"))
}

func TestPacketConnectionLz4(t *testing.T) {
	c, _ := compress.NewCompressor("lz4")
	testPacketConnection(t, c, bytes.Repeat([]byte("template "), 1000))
}

func TestPacketConnectionZstd(t *testing.T) {
	c, _ := compress.NewCompressor("zstd")
	testPacketConnection(t, c, bytes.Repeat([]byte("deployment "), 1000))
}

func TestIsConnectionError(t *testing.T) {
	assert.Equal(t, false, IsConnectionError(nil))
	assert.Equal(t, false, IsConnectionError("error"))
	assert.Equal(t, true, IsConnectionError(errEOF()))
}

func errEOF() error {
	_, err := bytes.NewReader(nil).Read(make([]byte, 1))
	return err
}

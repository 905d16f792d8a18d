package netutil

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/netutil/compress"
)

const (
	_MIN_PAYLOAD_CAP = 128
	_SIZE_FIELD_SIZE = 4
	_PREPAYLOAD_SIZE = _SIZE_FIELD_SIZE

	_PAYLOAD_LEN_MASK            = 0x7FFFFFFF
	_PAYLOAD_COMPRESSED_BIT_MASK = 0x80000000
)

var (
	// NETWORK_ENDIAN is the byte order of all integers on the wire
	NETWORK_ENDIAN = binary.LittleEndian

	// ErrPacketUnderflow is the panic value of reads beyond the payload end
	ErrPacketUnderflow = errors.New("read beyond packet payload")

	packetPool = sync.Pool{
		New: func() interface{} {
			return &Packet{
				bytes: make([]byte, _PREPAYLOAD_SIZE, _PREPAYLOAD_SIZE+_MIN_PAYLOAD_CAP),
			}
		},
	}
)

// Packet is a frame payload for sending and receiving.
//
// The first _PREPAYLOAD_SIZE bytes are reserved for the frame size field which is filled when the packet is sent.
// Reads past the end of the payload panic with ErrPacketUnderflow.
type Packet struct {
	readCursor uint32
	bytes      []byte
}

// NewPacket allocates a new packet from the packet pool
func NewPacket() *Packet {
	return packetPool.Get().(*Packet)
}

// NewPacketWithPayload allocates a packet holding a copy of the payload
func NewPacketWithPayload(payload []byte) *Packet {
	p := NewPacket()
	p.AppendBytes(payload)
	return p
}

// Release releases the packet to packet pool
func (p *Packet) Release() {
	if cap(p.bytes) > consts.MAX_PACKET_PAYLOAD_LENGTH/64 {
		// do not keep huge buffers in the pool
		p.bytes = make([]byte, _PREPAYLOAD_SIZE, _PREPAYLOAD_SIZE+_MIN_PAYLOAD_CAP)
	}
	p.ClearPayload()
	packetPool.Put(p)
}

// Payload returns the total payload of packet
func (p *Packet) Payload() []byte {
	return p.bytes[_PREPAYLOAD_SIZE:]
}

// UnreadPayload returns the unread payload
func (p *Packet) UnreadPayload() []byte {
	return p.bytes[_PREPAYLOAD_SIZE+p.readCursor:]
}

// HasUnreadPayload returns if there is payload left to read
func (p *Packet) HasUnreadPayload() bool {
	return p.readCursor < p.GetPayloadLen()
}

// GetPayloadLen returns the payload length
func (p *Packet) GetPayloadLen() uint32 {
	return uint32(len(p.bytes) - _PREPAYLOAD_SIZE)
}

// ClearPayload clears packet payload
func (p *Packet) ClearPayload() {
	p.readCursor = 0
	p.bytes = p.bytes[:_PREPAYLOAD_SIZE]
}

// AppendByte appends one byte to the end of payload
func (p *Packet) AppendByte(b byte) {
	p.bytes = append(p.bytes, b)
}

// ReadOneByte reads one byte from the beginning
func (p *Packet) ReadOneByte() (v byte) {
	return p.ReadBytes(1)[0]
}

// AppendBool appends one byte 1/0 to the end of payload
func (p *Packet) AppendBool(b bool) {
	if b {
		p.AppendByte(1)
	} else {
		p.AppendByte(0)
	}
}

// ReadBool reads one byte 1/0 from the beginning of unread payload
func (p *Packet) ReadBool() (v bool) {
	return p.ReadOneByte() != 0
}

// AppendUint16 appends one uint16 to the end of payload
func (p *Packet) AppendUint16(v uint16) {
	var b [2]byte
	NETWORK_ENDIAN.PutUint16(b[:], v)
	p.bytes = append(p.bytes, b[:]...)
}

// AppendUint32 appends one uint32 to the end of payload
func (p *Packet) AppendUint32(v uint32) {
	var b [4]byte
	NETWORK_ENDIAN.PutUint32(b[:], v)
	p.bytes = append(p.bytes, b[:]...)
}

// AppendUint64 appends one uint64 to the end of payload
func (p *Packet) AppendUint64(v uint64) {
	var b [8]byte
	NETWORK_ENDIAN.PutUint64(b[:], v)
	p.bytes = append(p.bytes, b[:]...)
}

// AppendFloat64 appends one float64 to the end of payload
func (p *Packet) AppendFloat64(f float64) {
	p.AppendUint64(math.Float64bits(f))
}

// ReadFloat64 reads one float64 from the beginning of unread payload
func (p *Packet) ReadFloat64() float64 {
	return math.Float64frombits(p.ReadUint64())
}

// AppendBytes appends slice of bytes to the end of payload
func (p *Packet) AppendBytes(v []byte) {
	p.bytes = append(p.bytes, v...)
}

// AppendVarStr appends a varsize string to the end of payload
func (p *Packet) AppendVarStr(s string) {
	p.AppendUint32(uint32(len(s)))
	p.bytes = append(p.bytes, s...)
}

// AppendVarBytes appends varsize bytes to the end of payload
func (p *Packet) AppendVarBytes(v []byte) {
	p.AppendUint32(uint32(len(v)))
	p.AppendBytes(v)
}

// AppendStringList appends a list of varsize strings
func (p *Packet) AppendStringList(list []string) {
	p.AppendUint32(uint32(len(list)))
	for _, s := range list {
		p.AppendVarStr(s)
	}
}

// ReadUint16 reads one uint16 from the beginning of unread payload
func (p *Packet) ReadUint16() (v uint16) {
	return NETWORK_ENDIAN.Uint16(p.ReadBytes(2))
}

// ReadUint32 reads one uint32 from the beginning of unread payload
func (p *Packet) ReadUint32() (v uint32) {
	return NETWORK_ENDIAN.Uint32(p.ReadBytes(4))
}

// ReadUint64 reads one uint64 from the beginning of unread payload
func (p *Packet) ReadUint64() (v uint64) {
	return NETWORK_ENDIAN.Uint64(p.ReadBytes(8))
}

// ReadBytes reads bytes from the beginning of unread payload. The result shares memory with the packet.
func (p *Packet) ReadBytes(size uint32) []byte {
	if uint64(p.readCursor)+uint64(size) > uint64(p.GetPayloadLen()) {
		panic(ErrPacketUnderflow)
	}
	pos := _PREPAYLOAD_SIZE + p.readCursor
	p.readCursor += size
	return p.bytes[pos : pos+size]
}

// ReadVarStr reads a varsize string from the beginning of unread payload
func (p *Packet) ReadVarStr() string {
	return string(p.ReadVarBytes())
}

// ReadVarBytes reads a varsize slice of bytes from the beginning of unread payload
func (p *Packet) ReadVarBytes() []byte {
	blen := p.ReadUint32()
	return p.ReadBytes(blen)
}

// ReadStringList reads a list of varsize strings
func (p *Packet) ReadStringList() []string {
	n := p.ReadUint32()
	if n > p.GetPayloadLen() {
		panic(ErrPacketUnderflow)
	}
	list := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		list = append(list, p.ReadVarStr())
	}
	return list
}

// frame fills the size field and returns the bytes to put on the wire,
// compressing the payload if it is large enough
func (p *Packet) frame(compressor compress.Compressor, scratch []byte) []byte {
	payloadLen := p.GetPayloadLen()
	if compressor != nil && payloadLen >= consts.PACKET_PAYLOAD_LEN_COMPRESS_THRESHOLD {
		out, err := compressor.Compress(p.Payload(), append(scratch[:0], 0, 0, 0, 0))
		if err == nil {
			NETWORK_ENDIAN.PutUint32(out, uint32(len(out)-_PREPAYLOAD_SIZE)|_PAYLOAD_COMPRESSED_BIT_MASK)
			return out
		}
	}
	NETWORK_ENDIAN.PutUint32(p.bytes, payloadLen)
	return p.bytes
}

// ReadCursor returns the current read position in the payload, for diagnostics
func (p *Packet) ReadCursor() uint32 {
	return p.readCursor
}

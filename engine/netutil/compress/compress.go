package compress

import (
	"encoding/binary"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Compressor compresses packet payloads. Compressed output is self contained: Decompress does
// not need to know the original size in advance.
type Compressor interface {
	Compress(b []byte, c []byte) ([]byte, error)
	Decompress(c []byte, b []byte) ([]byte, error)
}

var (
	// ErrIncompressible is returned when compressing does not make the data smaller
	ErrIncompressible = errors.New("data is incompressible")

	errCorrupted = errors.New("compressed data is corrupted")
)

// NewCompressor creates the compressor of the format name: lz4 or zstd
func NewCompressor(compressFormat string) (Compressor, error) {
	compressFormat = strings.ToLower(compressFormat)
	if compressFormat == "" || compressFormat == "lz4" {
		return lz4Compressor{}, nil
	} else if compressFormat == "zstd" {
		return newZstdCompressor()
	}
	return nil, errors.Errorf("unknown compress format: %s", compressFormat)
}

const _SIZE_PREFIX = 4

// lz4Compressor uses LZ4 block mode, prefixed with the uncompressed length
type lz4Compressor struct{}

func (lz4Compressor) Compress(b []byte, c []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(b))
	start := len(c)
	need := start + _SIZE_PREFIX + bound
	if cap(c) < need {
		nc := make([]byte, start, need)
		copy(nc, c)
		c = nc
	}
	c = c[:need]
	binary.LittleEndian.PutUint32(c[start:], uint32(len(b)))

	written, err := lz4.CompressBlock(b, c[start+_SIZE_PREFIX:], nil)
	if err != nil {
		return nil, errors.Wrap(err, "lz4 compress")
	}
	if written == 0 || written+_SIZE_PREFIX >= len(b) {
		return nil, ErrIncompressible
	}
	return c[:start+_SIZE_PREFIX+written], nil
}

func (lz4Compressor) Decompress(c []byte, b []byte) ([]byte, error) {
	if len(c) < _SIZE_PREFIX {
		return nil, errCorrupted
	}
	size := int(binary.LittleEndian.Uint32(c))
	start := len(b)
	if cap(b)-start < size {
		nb := make([]byte, start, start+size)
		copy(nb, b)
		b = nb
	}
	b = b[:start+size]
	read, err := lz4.UncompressBlock(c[_SIZE_PREFIX:], b[start:])
	if err != nil {
		return nil, errors.Wrap(err, "lz4 decompress")
	}
	if read != size {
		return nil, errCorrupted
	}
	return b, nil
}

// zstdCompressor uses zstd frames, which carry their own size
type zstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdCompressor() (*zstdCompressor, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, errors.Wrap(err, "zstd encoder")
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "zstd decoder")
	}
	return &zstdCompressor{encoder: encoder, decoder: decoder}, nil
}

func (zc *zstdCompressor) Compress(b []byte, c []byte) ([]byte, error) {
	start := len(c)
	c = zc.encoder.EncodeAll(b, c)
	if len(c)-start >= len(b) {
		return nil, ErrIncompressible
	}
	return c, nil
}

func (zc *zstdCompressor) Decompress(c []byte, b []byte) ([]byte, error) {
	b, err := zc.decoder.DecodeAll(c, b)
	if err != nil {
		return nil, errors.Wrap(err, "zstd decompress")
	}
	return b, nil
}

package compress

import (
	"bytes"
	"math/rand"
	"testing"
)

func testCompressor(t *testing.T, format string) {
	c, err := NewCompressor(format)
	if err != nil {
		t.Fatal(err)
	}

	data := bytes.Repeat([]byte("cloudnet service template "), 200)
	compressed, err := c.Compress(data, nil)
	if err != nil {
		t.Fatalf("%s compress: %v", format, err)
	}
	if len(compressed) >= len(data) {
		t.Errorf("%s: compressed size %d should be smaller than %d", format, len(compressed), len(data))
	}

	restored, err := c.Decompress(compressed, nil)
	if err != nil {
		t.Fatalf("%s decompress: %v", format, err)
	}
	if !bytes.Equal(restored, data) {
		t.Errorf("%s: restored data differs", format)
	}

	random := make([]byte, 256)
	rand.Read(random)
	if _, err := c.Compress(random, nil); err != ErrIncompressible {
		t.Errorf("%s: random data should be incompressible, got %v", format, err)
	}
}

func TestLz4Compressor(t *testing.T) {
	testCompressor(t, "lz4")
}

func TestZstdCompressor(t *testing.T) {
	testCompressor(t, "zstd")
}

func TestUnknownCompressor(t *testing.T) {
	if _, err := NewCompressor("lzw"); err == nil {
		t.Errorf("lzw should be unknown")
	}
}

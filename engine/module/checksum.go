package module

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

// checksum is an expected digest of an artifact: sha256:<hex>, blake3:<hex> or a bare sha256 hex digest
type checksum struct {
	algorithm string
	digest    string
}

func parseChecksum(s string) (*checksum, error) {
	if s == "" {
		return nil, nil
	}
	algorithm, digest := "sha256", s
	if i := strings.IndexByte(s, ':'); i >= 0 {
		algorithm, digest = strings.ToLower(s[:i]), s[i+1:]
	}
	digest = strings.ToLower(digest)
	if _, err := hex.DecodeString(digest); err != nil || len(digest) != 64 {
		return nil, errors.Errorf("invalid %s checksum %q", algorithm, s)
	}
	switch algorithm {
	case "sha256", "blake3":
		return &checksum{algorithm: algorithm, digest: digest}, nil
	default:
		return nil, errors.Errorf("unsupported checksum algorithm %s", algorithm)
	}
}

func (c *checksum) newHash() hash.Hash {
	if c.algorithm == "blake3" {
		return blake3.New()
	}
	return sha256.New()
}

func (c *checksum) verify(h hash.Hash) error {
	actual := hex.EncodeToString(h.Sum(nil))
	if actual != c.digest {
		return errors.Errorf("%s checksum mismatch: expected %s, got %s", c.algorithm, c.digest, actual)
	}
	return nil
}

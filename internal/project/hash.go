package project

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// Digest is a fixed 256 bit hash.
type Digest [32]byte

// String returns the lowercase hex form.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// KeyFor derives a stable key for a project from its cleaned manifest path.
func KeyFor(manifestPath string) Digest {
	return sha256.Sum256([]byte(filepath.Clean(manifestPath)))
}

// Combine builds H(content || dep1 || dep2 ...). Order of deps matters.
func Combine(content Digest, deps ...Digest) Digest {
	h := sha256.New()
	_, _ = h.Write(content[:])
	for _, d := range deps {
		_, _ = h.Write(d[:])
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

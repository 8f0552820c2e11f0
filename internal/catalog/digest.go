package catalog

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest is a SHA-256 content hash.
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short is the first 12 hex digits, enough for headers and logs.
func (d Digest) Short() string {
	return d.String()[:12]
}

// Combine hashes content followed by deps. Callers keep deps in a
// deterministic order.
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

// DigestSources hashes file names and contents in the given order.
func DigestSources(sources []Source) Digest {
	names := sha256.New()
	files := make([]Digest, 0, len(sources))
	for _, src := range sources {
		_, _ = names.Write([]byte(src.Name))
		_, _ = names.Write([]byte{0})
		files = append(files, sha256.Sum256(src.Data))
	}
	var head Digest
	copy(head[:], names.Sum(nil))
	return Combine(head, files...)
}

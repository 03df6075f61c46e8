package crypto

import (
	"io"

	"golang.org/x/crypto/sha3"
)

// NewShakeReader returns an endless SHAKE256 stream keyed by label and seed.
// It is a reproducible entropy source for test vectors, never for real invites.
func NewShakeReader(label string, seed []byte) io.Reader {
	h := sha3.NewShake256()
	_, _ = h.Write([]byte(label))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(seed)
	return h
}

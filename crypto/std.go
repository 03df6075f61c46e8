package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
	"math"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// libsodium's crypto_pwhash always runs Argon2id with a single lane.
const argon2Lanes uint8 = 1

// StdCryptoProvider implements CryptoProvider on golang.org/x/crypto.
// The zero value draws randomness from crypto/rand.
type StdCryptoProvider struct {
	// Rand overrides the entropy source. Only vector generation and tests set it.
	Rand io.Reader
}

func (p StdCryptoProvider) RandomBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("random bytes: negative length %d", n)
	}
	r := p.Rand
	if r == nil {
		r = rand.Reader
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("random bytes: %w", err)
	}
	return out, nil
}

func (p StdCryptoProvider) Argon2id(password, salt []byte, opsLimit uint32, memLimitBytes uint64, keyLen uint32) ([]byte, error) {
	if opsLimit == 0 {
		return nil, fmt.Errorf("argon2id: ops limit must be > 0")
	}
	if keyLen == 0 {
		return nil, fmt.Errorf("argon2id: key length must be > 0")
	}
	if len(salt) < 8 {
		return nil, fmt.Errorf("argon2id: salt too short (%d)", len(salt))
	}
	memKiB := memLimitBytes / 1024
	if memKiB < 8 || memKiB > math.MaxUint32 {
		return nil, fmt.Errorf("argon2id: memory limit %d out of range", memLimitBytes)
	}
	return argon2.IDKey(password, salt, opsLimit, uint32(memKiB), argon2Lanes, keyLen), nil // #nosec G115 -- memKiB bounded above.
}

func (p StdCryptoProvider) SealXChaCha20Poly1305(key, nonce, plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xchacha20poly1305: %w", err)
	}
	if len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("xchacha20poly1305: nonce length %d", len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, ad), nil
}

func (p StdCryptoProvider) OpenXChaCha20Poly1305(key, nonce, ciphertext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xchacha20poly1305: %w", err)
	}
	if len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("xchacha20poly1305: nonce length %d", len(nonce))
	}
	pt, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return pt, nil
}

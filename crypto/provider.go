package crypto

import "errors"

// ErrAuthFailed is returned by OpenXChaCha20Poly1305 when the ciphertext, tag
// or associated data does not authenticate under the key.
var ErrAuthFailed = errors.New("crypto: message authentication failed")

// CryptoProvider is the narrow crypto interface used by the envelope codec.
// Implementations must agree byte-for-byte with libsodium's crypto_pwhash
// (Argon2id v1.3) and crypto_aead_xchacha20poly1305_ietf.
type CryptoProvider interface {
	RandomBytes(n int) ([]byte, error)
	Argon2id(password, salt []byte, opsLimit uint32, memLimitBytes uint64, keyLen uint32) ([]byte, error)
	SealXChaCha20Poly1305(key, nonce, plaintext, ad []byte) ([]byte, error)
	OpenXChaCha20Poly1305(key, nonce, ciphertext, ad []byte) ([]byte, error)
}

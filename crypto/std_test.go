package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestStdRandomBytesLength(t *testing.T) {
	p := StdCryptoProvider{}
	b, err := p.RandomBytes(24)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	if len(b) != 24 {
		t.Fatalf("len=%d want 24", len(b))
	}
	if _, err := p.RandomBytes(-1); err == nil {
		t.Fatalf("expected error for negative length")
	}
}

func TestStdRandomBytesUsesInjectedReader(t *testing.T) {
	a := StdCryptoProvider{Rand: NewShakeReader("test", []byte{1})}
	b := StdCryptoProvider{Rand: NewShakeReader("test", []byte{1})}
	x, err := a.RandomBytes(16)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	y, err := b.RandomBytes(16)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	if !bytes.Equal(x, y) {
		t.Fatalf("same seed produced different bytes")
	}
}

func TestStdRandomBytesShortReader(t *testing.T) {
	p := StdCryptoProvider{Rand: bytes.NewReader([]byte{1, 2})}
	if _, err := p.RandomBytes(8); err == nil {
		t.Fatalf("expected error on short entropy source")
	}
}

func TestShakeReaderDomainSeparation(t *testing.T) {
	var a, b [32]byte
	_, _ = NewShakeReader("a", []byte("seed")).Read(a[:])
	_, _ = NewShakeReader("b", []byte("seed")).Read(b[:])
	if a == b {
		t.Fatalf("labels not separated")
	}
}

func TestStdArgon2idDeterministic(t *testing.T) {
	p := StdCryptoProvider{}
	salt := bytes.Repeat([]byte{0x11}, 16)
	k1, err := p.Argon2id([]byte("KISR-ABCDEFGH"), salt, 2, 64*1024*1024, 32)
	if err != nil {
		t.Fatalf("Argon2id: %v", err)
	}
	k2, err := p.Argon2id([]byte("KISR-ABCDEFGH"), salt, 2, 64*1024*1024, 32)
	if err != nil {
		t.Fatalf("Argon2id: %v", err)
	}
	if len(k1) != 32 || !bytes.Equal(k1, k2) {
		t.Fatalf("derivation not deterministic")
	}
	k3, err := p.Argon2id([]byte("KISR-ABCDEFGJ"), salt, 2, 64*1024*1024, 32)
	if err != nil {
		t.Fatalf("Argon2id: %v", err)
	}
	if bytes.Equal(k1, k3) {
		t.Fatalf("different passwords produced the same key")
	}
}

func TestStdArgon2idRejectsBadParams(t *testing.T) {
	p := StdCryptoProvider{}
	salt := make([]byte, 16)
	if _, err := p.Argon2id([]byte("x"), salt, 0, 64*1024*1024, 32); err == nil {
		t.Fatalf("expected error for zero ops")
	}
	if _, err := p.Argon2id([]byte("x"), salt, 2, 1024, 32); err == nil {
		t.Fatalf("expected error for tiny memory")
	}
	if _, err := p.Argon2id([]byte("x"), salt[:4], 2, 64*1024*1024, 32); err == nil {
		t.Fatalf("expected error for short salt")
	}
	if _, err := p.Argon2id([]byte("x"), salt, 2, 64*1024*1024, 0); err == nil {
		t.Fatalf("expected error for zero key length")
	}
}

func TestStdXChaCha20Poly1305RoundTrip(t *testing.T) {
	p := StdCryptoProvider{}
	key := bytes.Repeat([]byte{0x42}, 32)
	nonce := bytes.Repeat([]byte{0x24}, 24)
	ad := []byte{0x01, 0xaa}
	ct, err := p.SealXChaCha20Poly1305(key, nonce, []byte("payload"), ad)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if len(ct) != len("payload")+16 {
		t.Fatalf("ciphertext len=%d", len(ct))
	}
	pt, err := p.OpenXChaCha20Poly1305(key, nonce, ct, ad)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(pt) != "payload" {
		t.Fatalf("plaintext mismatch: %q", pt)
	}
}

func TestStdXChaCha20Poly1305TamperFails(t *testing.T) {
	p := StdCryptoProvider{}
	key := bytes.Repeat([]byte{0x42}, 32)
	nonce := bytes.Repeat([]byte{0x24}, 24)
	ct, err := p.SealXChaCha20Poly1305(key, nonce, []byte("payload"), []byte{1})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := p.OpenXChaCha20Poly1305(key, nonce, ct, []byte{2}); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("ad mismatch: got %v", err)
	}
	ct[0] ^= 0x01
	if _, err := p.OpenXChaCha20Poly1305(key, nonce, ct, []byte{1}); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("tampered ciphertext: got %v", err)
	}
}

func TestStdXChaCha20Poly1305RejectsBadSizes(t *testing.T) {
	p := StdCryptoProvider{}
	if _, err := p.SealXChaCha20Poly1305(make([]byte, 16), make([]byte, 24), nil, nil); err == nil {
		t.Fatalf("expected error for short key")
	}
	if _, err := p.SealXChaCha20Poly1305(make([]byte, 32), make([]byte, 12), nil, nil); err == nil {
		t.Fatalf("expected error for short nonce")
	}
	if _, err := p.OpenXChaCha20Poly1305(make([]byte, 32), make([]byte, 12), make([]byte, 16), nil); err == nil {
		t.Fatalf("expected error for short nonce")
	}
}

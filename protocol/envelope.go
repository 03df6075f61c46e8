package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"kisr.dev/kisr/crypto"
)

const (
	EnvelopePrefix  = "KISR-"
	EnvelopeVersion = byte(0x01)

	SaltLen  = 16
	NonceLen = 24
	MACLen   = 16
	KeyLen   = 32

	KDFOpsLimit uint32 = 2
	KDFMemLimit uint64 = 64 << 20

	// MaxMemoLen counts UTF-16 code units.
	MaxMemoLen = 40

	envelopeHeaderLen = len(EnvelopePrefix) + 1 + SaltLen + NonceLen
	MinEnvelopeLen    = envelopeHeaderLen + MACLen
)

// BuildParams are the inviter-side inputs sealed into an envelope.
type BuildParams struct {
	Outpoint      Outpoint
	Amount        uint64
	Presig        []byte
	Network       NetworkID
	Memo          string
	InviterPubKey []byte
}

// DecryptedPayload is the plaintext view of an envelope. Absent optional
// fields carry their defaults: sighash 0x82, mainnet, empty memo and pubkey.
type DecryptedPayload struct {
	Outpoint      Outpoint
	Amount        uint64
	Presig        []byte
	Sighash       SighashType
	InviterPubKey []byte
	Network       NetworkID
	Timestamp     uint64
	Memo          string
}

// EnvelopeHeader is the unauthenticated framing of an envelope.
type EnvelopeHeader struct {
	Version       byte
	Salt          [SaltLen]byte
	Nonce         [NonceLen]byte
	CiphertextLen int
}

// EnvelopeCodec seals and opens invite envelopes.
type EnvelopeCodec struct {
	crypto crypto.CryptoProvider
	now    func() time.Time
}

type EnvelopeOption func(*EnvelopeCodec)

// WithClock overrides the clock used for the Timestamp field.
func WithClock(now func() time.Time) EnvelopeOption {
	return func(c *EnvelopeCodec) {
		if now != nil {
			c.now = now
		}
	}
}

func NewEnvelopeCodec(p crypto.CryptoProvider, opts ...EnvelopeOption) (*EnvelopeCodec, error) {
	if p == nil {
		return nil, kerr(KISR_ERR_CRYPTO_UNAVAILABLE, "envelope codec: nil crypto provider")
	}
	c := &EnvelopeCodec{crypto: p, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Crypto returns the provider the codec was built with.
func (c *EnvelopeCodec) Crypto() crypto.CryptoProvider { return c.crypto }

// Build seals p under a key derived from code.
// Layout:
// "KISR-" | version u8 | salt 16 | nonce 24 | ciphertext || mac 16
func (c *EnvelopeCodec) Build(code string, p BuildParams) ([]byte, error) {
	norm, ok := NormalizeCode(code)
	if !ok {
		return nil, kerr(KISR_ERR_INVALID_CODE, "envelope build: malformed code")
	}
	plaintext, err := c.encodePayload(p)
	if err != nil {
		return nil, err
	}

	salt, err := c.crypto.RandomBytes(SaltLen)
	if err != nil {
		return nil, WrapError(KISR_ERR_CRYPTO_UNAVAILABLE, "envelope salt", err)
	}
	nonce, err := c.crypto.RandomBytes(NonceLen)
	if err != nil {
		return nil, WrapError(KISR_ERR_CRYPTO_UNAVAILABLE, "envelope nonce", err)
	}
	if len(salt) != SaltLen || len(nonce) != NonceLen {
		return nil, kerr(KISR_ERR_CRYPTO_UNAVAILABLE, "envelope: short random read")
	}

	key, err := c.deriveKey(norm, salt)
	if err != nil {
		return nil, err
	}
	ad := envelopeAD(salt)
	ct, err := c.crypto.SealXChaCha20Poly1305(key, nonce, plaintext, ad)
	if err != nil {
		return nil, WrapError(KISR_ERR_CRYPTO_UNAVAILABLE, "envelope seal", err)
	}

	out := make([]byte, 0, envelopeHeaderLen+len(ct))
	out = append(out, EnvelopePrefix...)
	out = append(out, EnvelopeVersion)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ct...)
	return out, nil
}

// Decrypt opens an envelope with the redeemer's code.
func (c *EnvelopeCodec) Decrypt(code string, envelope []byte) (*DecryptedPayload, error) {
	norm, ok := NormalizeCode(code)
	if !ok {
		return nil, kerr(KISR_ERR_INVALID_CODE, "envelope decrypt: malformed code")
	}
	h, err := InspectEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	key, err := c.deriveKey(norm, h.Salt[:])
	if err != nil {
		return nil, err
	}
	ct := envelope[envelopeHeaderLen:]
	plaintext, err := c.crypto.OpenXChaCha20Poly1305(key, h.Nonce[:], ct, envelopeAD(h.Salt[:]))
	if err != nil {
		if errors.Is(err, crypto.ErrAuthFailed) {
			return nil, kerr(KISR_ERR_DECRYPTION_FAILED, "wrong code or tampered envelope")
		}
		return nil, WrapError(KISR_ERR_CRYPTO_UNAVAILABLE, "envelope open", err)
	}
	return decodePayload(plaintext)
}

// InspectEnvelope checks framing and returns the header without decrypting.
func InspectEnvelope(envelope []byte) (EnvelopeHeader, error) {
	var h EnvelopeHeader
	if len(envelope) < MinEnvelopeLen {
		return h, kerr(KISR_ERR_PAYLOAD_INVALID, fmt.Sprintf("envelope too short (%d < %d)", len(envelope), MinEnvelopeLen))
	}
	if !bytes.HasPrefix(envelope, []byte(EnvelopePrefix)) {
		return h, kerr(KISR_ERR_PAYLOAD_INVALID, "envelope prefix mismatch")
	}
	off := len(EnvelopePrefix)
	h.Version = envelope[off]
	if h.Version != EnvelopeVersion {
		return h, kerr(KISR_ERR_PAYLOAD_INVALID, fmt.Sprintf("unsupported envelope version 0x%02x", h.Version))
	}
	off++
	copy(h.Salt[:], envelope[off:off+SaltLen])
	off += SaltLen
	copy(h.Nonce[:], envelope[off:off+NonceLen])
	h.CiphertextLen = len(envelope) - envelopeHeaderLen
	return h, nil
}

func (c *EnvelopeCodec) deriveKey(code string, salt []byte) ([]byte, error) {
	key, err := c.crypto.Argon2id([]byte(code), salt, KDFOpsLimit, KDFMemLimit, KeyLen)
	if err != nil {
		return nil, WrapError(KISR_ERR_CRYPTO_UNAVAILABLE, "argon2id", err)
	}
	if len(key) != KeyLen {
		return nil, kerr(KISR_ERR_CRYPTO_UNAVAILABLE, "argon2id: bad key length")
	}
	return key, nil
}

func envelopeAD(salt []byte) []byte {
	ad := make([]byte, 0, 1+len(salt))
	ad = append(ad, EnvelopeVersion)
	return append(ad, salt...)
}

// Fields are written in a fixed order; readers must not depend on it.
func (c *EnvelopeCodec) encodePayload(p BuildParams) ([]byte, error) {
	if p.Memo != "" {
		if err := ValidateMemo(p.Memo); err != nil {
			return nil, err
		}
	}
	if len(p.InviterPubKey) > 0 {
		if err := ValidateInviterPubKey(p.InviterPubKey); err != nil {
			return nil, err
		}
	}
	ts := c.now().Unix()
	if ts < 0 {
		ts = 0
	}

	var w TLVWriter
	w.Write(TagOutpoint, encodeOutpoint(p.Outpoint))
	w.Write(TagPresig, p.Presig)
	w.WriteU8(TagSighash, uint8(SighashNoneAnyoneCanPay))
	if len(p.InviterPubKey) > 0 {
		w.Write(TagInviterPubKey, p.InviterPubKey)
	}
	w.WriteU64(TagAmount, p.Amount)
	w.WriteU8(TagNetworkID, p.Network.Byte())
	w.WriteU64(TagTimestamp, uint64(ts))
	if p.Memo != "" {
		w.Write(TagMemo, []byte(p.Memo))
	}
	return w.Bytes()
}

func decodePayload(plaintext []byte) (*DecryptedPayload, error) {
	m, err := DecodeTLV(plaintext)
	if err != nil {
		return nil, err
	}
	raw, ok := m[TagOutpoint]
	if !ok {
		return nil, kerr(KISR_ERR_PAYLOAD_INVALID, "missing outpoint")
	}
	op, err := decodeOutpoint(raw)
	if err != nil {
		return nil, err
	}
	out := &DecryptedPayload{
		Outpoint:      op,
		Presig:        m[TagPresig],
		Sighash:       SighashNoneAnyoneCanPay,
		InviterPubKey: m[TagInviterPubKey],
		Network:       Mainnet,
	}
	if v, ok := m[TagSighash]; ok {
		if len(v) != 1 {
			return nil, kerr(KISR_ERR_PAYLOAD_INVALID, "sighash field length")
		}
		out.Sighash = SighashType(v[0])
	}
	if v, ok := m[TagAmount]; ok {
		if len(v) != 8 {
			return nil, kerr(KISR_ERR_PAYLOAD_INVALID, "amount field length")
		}
		out.Amount = binary.LittleEndian.Uint64(v)
	}
	if v, ok := m[TagNetworkID]; ok {
		if len(v) != 1 {
			return nil, kerr(KISR_ERR_PAYLOAD_INVALID, "network id field length")
		}
		out.Network = NetworkIDFromByte(v[0])
	}
	if v, ok := m[TagTimestamp]; ok {
		if len(v) != 8 {
			return nil, kerr(KISR_ERR_PAYLOAD_INVALID, "timestamp field length")
		}
		out.Timestamp = binary.LittleEndian.Uint64(v)
	}
	if v, ok := m[TagMemo]; ok {
		if !utf8.Valid(v) {
			return nil, kerr(KISR_ERR_PAYLOAD_INVALID, "memo is not valid UTF-8")
		}
		out.Memo = string(v)
	}
	return out, nil
}

// ValidateMemo enforces valid UTF-8 and the 40 code unit limit.
func ValidateMemo(memo string) error {
	if !utf8.ValidString(memo) {
		return kerr(KISR_ERR_PAYLOAD_INVALID, "memo is not valid UTF-8")
	}
	if n := len(utf16.Encode([]rune(memo))); n > MaxMemoLen {
		return kerr(KISR_ERR_PAYLOAD_INVALID, fmt.Sprintf("memo too long (%d > %d)", n, MaxMemoLen))
	}
	return nil
}

// ValidateInviterPubKey accepts a 32-byte x-only Schnorr key or a 33-byte
// compressed ECDSA key on secp256k1.
func ValidateInviterPubKey(b []byte) error {
	switch len(b) {
	case schnorr.PubKeyBytesLen:
		if _, err := schnorr.ParsePubKey(b); err != nil {
			return WrapError(KISR_ERR_PAYLOAD_INVALID, "inviter pubkey", err)
		}
	case btcec.PubKeyBytesLenCompressed:
		if _, err := btcec.ParsePubKey(b); err != nil {
			return WrapError(KISR_ERR_PAYLOAD_INVALID, "inviter pubkey", err)
		}
	default:
		return kerr(KISR_ERR_PAYLOAD_INVALID, fmt.Sprintf("inviter pubkey length %d", len(b)))
	}
	return nil
}

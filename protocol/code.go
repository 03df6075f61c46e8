package protocol

import (
	"strings"
	"unicode"

	"kisr.dev/kisr/crypto"
)

const (
	CodePrefix   = "KISR-"
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeBodyLen  = 8
	CodeLen      = len(CodePrefix) + CodeBodyLen
)

// b % len(alphabet) is only unbiased while the alphabet size divides 256.
var _ = [1]struct{}{}[256%len(CodeAlphabet)]

// GenerateCode draws a fresh invite code from p. An entropy failure is
// returned as KISR_ERR_CRYPTO_UNAVAILABLE; there is no fallback source.
func GenerateCode(p crypto.CryptoProvider) (string, error) {
	if p == nil {
		return "", kerr(KISR_ERR_CRYPTO_UNAVAILABLE, "no crypto provider")
	}
	raw, err := p.RandomBytes(CodeBodyLen)
	if err != nil {
		return "", WrapError(KISR_ERR_CRYPTO_UNAVAILABLE, "code entropy", err)
	}
	if len(raw) != CodeBodyLen {
		return "", kerr(KISR_ERR_CRYPTO_UNAVAILABLE, "code entropy: short read")
	}
	var sb strings.Builder
	sb.Grow(CodeLen)
	sb.WriteString(CodePrefix)
	for _, b := range raw {
		sb.WriteByte(CodeAlphabet[int(b)%len(CodeAlphabet)])
	}
	return sb.String(), nil
}

// NormalizeCode maps user input onto the canonical KISR-XXXXXXXX form.
func NormalizeCode(in string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(in))
	switch {
	case strings.HasPrefix(s, CodePrefix):
		s = s[len(CodePrefix):]
	case strings.HasPrefix(s, "KISR"):
		s = s[len("KISR"):]
	}
	s = strings.TrimLeft(s, "-: ")

	body := make([]rune, 0, CodeBodyLen)
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			body = append(body, r)
		}
	}
	if len(body) != CodeBodyLen {
		return "", false
	}
	for _, r := range body {
		if r > unicode.MaxASCII || !strings.ContainsRune(CodeAlphabet, r) {
			return "", false
		}
	}
	return CodePrefix + string(body), true
}

// ValidateCode reports whether code normalizes to a well-formed invite code.
func ValidateCode(code string) bool {
	n, ok := NormalizeCode(code)
	return ok && len(n) == CodeLen
}

package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"kisr.dev/kisr/crypto"
)

type fixedRand struct{ b []byte }

func (f fixedRand) Read(p []byte) (int, error) {
	return copy(p, f.b), nil
}

type brokenRand struct{}

func (brokenRand) Read([]byte) (int, error) { return 0, errors.New("entropy pool gone") }

func TestGenerateCodeMapsBytesModAlphabet(t *testing.T) {
	p := crypto.StdCryptoProvider{Rand: fixedRand{b: []byte{0, 1, 31, 32, 33, 255, 64, 8}}}
	code, err := GenerateCode(p)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	// 0->A 1->B 31->9 32->A 33->B 255->9 64->A 8->J
	if code != "KISR-AB9AB9AJ" {
		t.Fatalf("code=%q", code)
	}
	if !ValidateCode(code) {
		t.Fatalf("generated code does not validate")
	}
}

func TestGenerateCodeRandomIsValid(t *testing.T) {
	for i := 0; i < 64; i++ {
		code, err := GenerateCode(crypto.StdCryptoProvider{})
		if err != nil {
			t.Fatalf("GenerateCode: %v", err)
		}
		if len(code) != CodeLen || !strings.HasPrefix(code, CodePrefix) {
			t.Fatalf("bad shape %q", code)
		}
		if !ValidateCode(code) {
			t.Fatalf("invalid %q", code)
		}
	}
}

func TestGenerateCodeEntropyFailure(t *testing.T) {
	_, err := GenerateCode(crypto.StdCryptoProvider{Rand: brokenRand{}})
	if !HasCode(err, KISR_ERR_CRYPTO_UNAVAILABLE) {
		t.Fatalf("expected crypto unavailable, got %v", err)
	}
	_, err = GenerateCode(nil)
	if !HasCode(err, KISR_ERR_CRYPTO_UNAVAILABLE) {
		t.Fatalf("expected crypto unavailable for nil provider, got %v", err)
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"KISR-ABCDEFGH", "KISR-ABCDEFGH", true},
		{"kisr-abcd-efgh", "KISR-ABCDEFGH", true},
		{"  kisr:abcd efgh ", "KISR-ABCDEFGH", true},
		{"KISR abcdefgh", "KISR-ABCDEFGH", true},
		{"KISRABCDEFGH", "KISR-ABCDEFGH", true},
		{"abcd-efgh", "KISR-ABCDEFGH", true},
		{"KISR--23456789", "KISR-23456789", true},
		{"KISR-ABCDEFG", "", false},
		{"KISR-ABCDEFGHJ", "", false},
		{"KISR-ABCDEFGI", "", false},  // I excluded
		{"KISR-ABCDEFG0", "", false},  // 0 excluded
		{"KISR-ABCDEFG1", "", false},  // 1 excluded
		{"KISR-ABCDEFGÉ", "", false},  // non-ASCII letter
		{"", "", false},
		{"KISR-", "", false},
	}
	for _, c := range cases {
		got, ok := NormalizeCode(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("NormalizeCode(%q)=(%q,%v) want (%q,%v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestNormalizeCodeIdempotent(t *testing.T) {
	n1, ok := NormalizeCode("kisr-wxyz-2345")
	if !ok {
		t.Fatalf("normalize failed")
	}
	n2, ok := NormalizeCode(n1)
	if !ok || n1 != n2 {
		t.Fatalf("not idempotent: %q -> %q", n1, n2)
	}
}

func TestValidateCode(t *testing.T) {
	if !ValidateCode("kisr-abcdefgh") {
		t.Fatalf("expected valid")
	}
	if ValidateCode("KISR-ABC") {
		t.Fatalf("expected invalid")
	}
	if ValidateCode(string(bytes.Repeat([]byte("A"), 20))) {
		t.Fatalf("expected invalid")
	}
}

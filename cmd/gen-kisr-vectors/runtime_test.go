package main

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"kisr.dev/kisr/crypto"
	"kisr.dev/kisr/protocol"
)

func TestMustWriteFixtureWritesTrailingNewlineAndTightPerms(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "KISR-TEST.json")

	f := &fixtureFile{
		Gate: "KISR-TEST",
		Vectors: []map[string]any{
			{"id": "X", "op": "validate_code"},
		},
	}

	mustWriteFixture(path, f)

	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Mode().Perm()&0o077 != 0 {
		t.Fatalf("expected no group/other bits, got %o", st.Mode().Perm())
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(b) == 0 || b[len(b)-1] != '\n' {
		t.Fatalf("expected trailing newline")
	}
	var parsed fixtureFile
	if err := json.Unmarshal(b, &parsed); err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if parsed.Gate != "KISR-TEST" || len(parsed.Vectors) != 1 || parsed.Vectors[0]["id"] != "X" {
		t.Fatalf("round trip mismatch: %#v", parsed)
	}
}

func TestCodeVectorsAreDeterministic(t *testing.T) {
	a, b := codeVectors(), codeVectors()
	if len(a.Vectors) != len(b.Vectors) {
		t.Fatalf("vector count differs")
	}
	for i := range a.Vectors {
		if a.Vectors[i]["expect_code"] != b.Vectors[i]["expect_code"] {
			t.Fatalf("vector %v not reproducible", a.Vectors[i]["id"])
		}
	}
	seen := map[any]bool{}
	for _, v := range a.Vectors {
		if seen[v["id"]] {
			t.Fatalf("duplicate id %v", v["id"])
		}
		seen[v["id"]] = true
		if v["op"] == "generate_code" && !protocol.ValidateCode(v["expect_code"].(string)) {
			t.Fatalf("%v: generated code invalid", v["id"])
		}
	}
}

func TestFeeVectorsMatchKnownMass(t *testing.T) {
	f := feeVectors()
	first := f.Vectors[0]
	if first["expect_mass"] != uint64(1624) || first["expect_fee"] != uint64(1624) {
		t.Fatalf("single input vector: %#v", first)
	}
	second := f.Vectors[1]
	if second["expect_mass"] != uint64(2742) {
		t.Fatalf("two input vector: %#v", second)
	}
	last := f.Vectors[len(f.Vectors)-1]
	if last["expect_ok"] != false || last["expect_err"] != string(protocol.KISR_ERR_INSUFFICIENT_FUNDS) {
		t.Fatalf("overdrawn selection: %#v", last)
	}
}

func TestDeeplinkVectorsParse(t *testing.T) {
	for _, v := range deeplinkVectors().Vectors {
		if v["op"] != "parse_deeplink" {
			continue
		}
		_, err := protocol.ParseDeeplink(v["deeplink"].(string))
		if ok := err == nil; ok != v["expect_ok"] {
			t.Fatalf("%v: ok=%v, vector says %v", v["id"], ok, v["expect_ok"])
		}
	}
}

func TestEnvelopeVectorsOpenWithTheirCode(t *testing.T) {
	if testing.Short() {
		t.Skip("runs Argon2id at full cost")
	}
	codec, err := protocol.NewEnvelopeCodec(crypto.StdCryptoProvider{})
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	f := envelopeVectors()
	v := f.Vectors[0]
	if v["id"] != "KE-01-BUILD" {
		t.Fatalf("unexpected first vector %v", v["id"])
	}
	env, err := hex.DecodeString(v["expect_envelope"].(string))
	if err != nil {
		t.Fatalf("hex: %v", err)
	}
	dec, err := codec.Decrypt(v["code"].(string), env)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if dec.Amount != 150_000_000 || dec.Outpoint.TxID.String() != vectorTxID {
		t.Fatalf("payload mismatch: %+v", dec)
	}
	if dec.Timestamp != uint64(vectorTime.Unix()) {
		t.Fatalf("timestamp = %d", dec.Timestamp)
	}
}

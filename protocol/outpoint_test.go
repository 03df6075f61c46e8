package protocol

import (
	"bytes"
	"testing"
)

func TestParseTxIDStrict(t *testing.T) {
	h, err := ParseTxID(testTxID)
	if err != nil {
		t.Fatalf("ParseTxID: %v", err)
	}
	if h.String() != testTxID {
		t.Fatalf("round trip: %s", h.String())
	}
	for _, bad := range []string{"", "abcd", testTxID + "00", testTxID[:63] + "z"} {
		if _, err := ParseTxID(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestOutpointWireRoundTrip(t *testing.T) {
	h, _ := ParseTxID(testTxID)
	o := Outpoint{TxID: h, Index: 0x01020304}
	b := encodeOutpoint(o)
	if len(b) != OutpointWireLen {
		t.Fatalf("len=%d", len(b))
	}
	// canonical hex ends ...babe, so wire bytes start be ba.
	if !bytes.Equal(b[:2], []byte{0xbe, 0xba}) {
		t.Fatalf("txid not reversed: %x", b[:2])
	}
	if !bytes.Equal(b[32:], []byte{4, 3, 2, 1}) {
		t.Fatalf("vout: %x", b[32:])
	}
	got, err := decodeOutpoint(b)
	if err != nil || got != o {
		t.Fatalf("decode: %v %v", got, err)
	}
	if o.String() != testTxID+":16909060" {
		t.Fatalf("String=%s", o.String())
	}
}

package utxo

import "testing"

func TestLocateExactMatch(t *testing.T) {
	want := utxoAt(1, 2, 500)
	got, ok := Locate([]UTXO{utxoAt(1, 0, 500), want, utxoAt(2, 2, 500)}, want.Outpoint, 999)
	if !ok || got.Outpoint != want.Outpoint {
		t.Fatalf("got %+v ok=%v", got, ok)
	}
}

func TestLocateSoleSameTx(t *testing.T) {
	want := utxoAt(1, 0, 500)
	moved := utxoAt(1, 3, 700)
	got, ok := Locate([]UTXO{utxoAt(2, 0, 500), moved}, want.Outpoint, 500)
	if !ok || got.Outpoint != moved.Outpoint {
		t.Fatalf("got %+v ok=%v", got, ok)
	}
}

func TestLocateAmountDisambiguates(t *testing.T) {
	want := utxoAt(1, 0, 500)
	a := utxoAt(1, 1, 400)
	b := utxoAt(1, 2, 500)
	got, ok := Locate([]UTXO{a, b}, want.Outpoint, 500)
	if !ok || got.Outpoint != b.Outpoint {
		t.Fatalf("got %+v ok=%v", got, ok)
	}
}

func TestLocateNotFound(t *testing.T) {
	want := utxoAt(1, 0, 500)
	if _, ok := Locate([]UTXO{utxoAt(1, 1, 400), utxoAt(1, 2, 300)}, want.Outpoint, 500); ok {
		t.Fatalf("ambiguous same-tx entries must not match")
	}
	if _, ok := Locate(nil, want.Outpoint, 500); ok {
		t.Fatalf("empty set matched")
	}
	if _, ok := Locate([]UTXO{utxoAt(2, 0, 500)}, want.Outpoint, 500); ok {
		t.Fatalf("different tx matched")
	}
}

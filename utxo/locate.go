package utxo

import "kisr.dev/kisr/protocol"

// Locate finds the invite output among entries. An exact outpoint match wins;
// otherwise a sole entry on the same transaction, otherwise the entry on that
// transaction whose amount equals amount.
func Locate(entries []UTXO, want protocol.Outpoint, amount uint64) (UTXO, bool) {
	var sameTx []UTXO
	for _, e := range entries {
		if e.Outpoint == want {
			return e, true
		}
		if e.Outpoint.TxID == want.TxID {
			sameTx = append(sameTx, e)
		}
	}
	if len(sameTx) == 1 {
		return sameTx[0], true
	}
	for _, e := range sameTx {
		if e.Amount == amount {
			return e, true
		}
	}
	return UTXO{}, false
}

package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// OutpointWireLen is the TLV value length of the Outpoint field.
const OutpointWireLen = chainhash.HashSize + 4

// Outpoint references a transaction output. TxID holds the hash in internal
// byte order: String() yields the canonical hex and TxID[:] the reversed bytes
// written to the wire.
type Outpoint struct {
	TxID  chainhash.Hash
	Index uint32
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Index)
}

// ParseTxID parses a canonical 64-character transaction id.
func ParseTxID(s string) (chainhash.Hash, error) {
	if len(s) != chainhash.MaxHashStringSize {
		return chainhash.Hash{}, fmt.Errorf("txid must be %d hex chars, got %d", chainhash.MaxHashStringSize, len(s))
	}
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("txid: %w", err)
	}
	return *h, nil
}

// Layout:
// txid 32 (reversed canonical hex) | vout u32le
func encodeOutpoint(o Outpoint) []byte {
	out := make([]byte, OutpointWireLen)
	copy(out[:chainhash.HashSize], o.TxID[:])
	binary.LittleEndian.PutUint32(out[chainhash.HashSize:], o.Index)
	return out
}

func decodeOutpoint(b []byte) (Outpoint, error) {
	if len(b) != OutpointWireLen {
		return Outpoint{}, kerr(KISR_ERR_PAYLOAD_INVALID, fmt.Sprintf("outpoint length %d", len(b)))
	}
	var o Outpoint
	copy(o.TxID[:], b[:chainhash.HashSize])
	o.Index = binary.LittleEndian.Uint32(b[chainhash.HashSize:])
	return o, nil
}

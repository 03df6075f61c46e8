package store

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"

	"kisr.dev/kisr/invite"
	"kisr.dev/kisr/protocol"
)

const (
	inviteRecordV1     byte = 1
	redemptionRecordV1 byte = 1
)

// Layout (value of invites_by_id, key = uuid 16):
// ver u8 | state u8 | amount u64le | created_unix_ns i64le | updated_unix_ns i64le |
// txid 32 | vout u32le | anchor 32 | presig_len u16le | presig | memo_len u16le | memo
func encodeInvite(p *invite.CreateProgress) ([]byte, error) {
	if len(p.Presig) > 0xffff || len(p.Memo) > 0xffff {
		return nil, fmt.Errorf("invite record: field too long")
	}
	out := make([]byte, 0, 1+1+8+8+8+32+4+32+2+len(p.Presig)+2+len(p.Memo))
	out = append(out, inviteRecordV1, byte(p.State))
	out = binary.LittleEndian.AppendUint64(out, p.Amount)
	out = binary.LittleEndian.AppendUint64(out, uint64(unixNano(p.CreatedAt))) // #nosec G115 -- round-trips through int64.
	out = binary.LittleEndian.AppendUint64(out, uint64(unixNano(p.UpdatedAt))) // #nosec G115 -- round-trips through int64.
	out = append(out, p.Outpoint.TxID[:]...)
	out = binary.LittleEndian.AppendUint32(out, p.Outpoint.Index)
	out = append(out, p.AnchorTxID[:]...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(p.Presig))) // #nosec G115 -- bounded above.
	out = append(out, p.Presig...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(p.Memo))) // #nosec G115 -- bounded above.
	out = append(out, p.Memo...)
	return out, nil
}

func decodeInvite(id uuid.UUID, network protocol.NetworkID, b []byte) (*invite.CreateProgress, error) {
	r := reader{b: b}
	if v := r.u8(); v != inviteRecordV1 {
		return nil, fmt.Errorf("invite record %s: version %d", id, v)
	}
	p := &invite.CreateProgress{ID: id, Network: network}
	p.State = invite.CreateState(r.u8())
	p.Amount = r.u64()
	p.CreatedAt = fromUnixNano(int64(r.u64())) // #nosec G115 -- written from int64.
	p.UpdatedAt = fromUnixNano(int64(r.u64())) // #nosec G115 -- written from int64.
	copy(p.Outpoint.TxID[:], r.take(chainhash.HashSize))
	p.Outpoint.Index = r.u32()
	copy(p.AnchorTxID[:], r.take(chainhash.HashSize))
	if n := int(r.u16()); n > 0 {
		p.Presig = append([]byte(nil), r.take(n)...)
	}
	p.Memo = string(r.take(int(r.u16())))
	if r.err != nil {
		return nil, fmt.Errorf("invite record %s: %w", id, r.err)
	}
	if len(r.b) != 0 {
		return nil, fmt.Errorf("invite record %s: %d trailing bytes", id, len(r.b))
	}
	return p, nil
}

// Layout (value of redemptions_by_anchor, key = anchor txid 32):
// ver u8 | redemption_txid 32 | in_txid 32 | in_vout u32le | amount u64le |
// fee u64le | redeemed_unix_ns i64le | dest_len u16le | dest
func encodeRedemption(r *invite.RedemptionReceipt) ([]byte, error) {
	if len(r.Destination) > 0xffff {
		return nil, fmt.Errorf("redemption record: destination too long")
	}
	out := make([]byte, 0, 1+32+32+4+8+8+8+2+len(r.Destination))
	out = append(out, redemptionRecordV1)
	out = append(out, r.RedemptionTxID[:]...)
	out = append(out, r.Input.TxID[:]...)
	out = binary.LittleEndian.AppendUint32(out, r.Input.Index)
	out = binary.LittleEndian.AppendUint64(out, r.Amount)
	out = binary.LittleEndian.AppendUint64(out, r.Fee)
	out = binary.LittleEndian.AppendUint64(out, uint64(unixNano(r.RedeemedAt))) // #nosec G115 -- round-trips through int64.
	out = binary.LittleEndian.AppendUint16(out, uint16(len(r.Destination)))    // #nosec G115 -- bounded above.
	out = append(out, r.Destination...)
	return out, nil
}

func decodeRedemption(anchor chainhash.Hash, b []byte) (*invite.RedemptionReceipt, error) {
	r := reader{b: b}
	if v := r.u8(); v != redemptionRecordV1 {
		return nil, fmt.Errorf("redemption record %s: version %d", anchor, v)
	}
	out := &invite.RedemptionReceipt{AnchorTxID: anchor}
	copy(out.RedemptionTxID[:], r.take(chainhash.HashSize))
	copy(out.Input.TxID[:], r.take(chainhash.HashSize))
	out.Input.Index = r.u32()
	out.Amount = r.u64()
	out.Fee = r.u64()
	out.RedeemedAt = fromUnixNano(int64(r.u64())) // #nosec G115 -- written from int64.
	out.Destination = string(r.take(int(r.u16())))
	if r.err != nil {
		return nil, fmt.Errorf("redemption record %s: %w", anchor, r.err)
	}
	if len(r.b) != 0 {
		return nil, fmt.Errorf("redemption record %s: %d trailing bytes", anchor, len(r.b))
	}
	return out, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// reader latches the first short read; later reads return zero values.
type reader struct {
	b   []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n > len(r.b) {
		r.err = fmt.Errorf("truncated: need %d have %d", n, len(r.b))
		return nil
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *reader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

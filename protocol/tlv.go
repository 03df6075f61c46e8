package protocol

import (
	"encoding/binary"
	"fmt"
)

// Tag identifies a TLV field inside the envelope plaintext.
type Tag uint8

const (
	TagOutpoint      Tag = 0x01
	TagPresig        Tag = 0x02
	TagSighash       Tag = 0x03
	TagInviterPubKey Tag = 0x04
	TagAmount        Tag = 0x05
	TagNetworkID     Tag = 0x06
	TagTimestamp     Tag = 0x07
	TagMemo          Tag = 0x08
)

const (
	tlvHeaderLen   = 3
	MaxTLVValueLen = 0xFFFF
)

func (t Tag) String() string {
	switch t {
	case TagOutpoint:
		return "outpoint"
	case TagPresig:
		return "presig"
	case TagSighash:
		return "sighash"
	case TagInviterPubKey:
		return "inviter_pubkey"
	case TagAmount:
		return "amount"
	case TagNetworkID:
		return "network_id"
	case TagTimestamp:
		return "timestamp"
	case TagMemo:
		return "memo"
	default:
		return fmt.Sprintf("tag_0x%02x", uint8(t))
	}
}

// TLVMap is the decoded field set. Unknown tags keep their own key.
type TLVMap map[Tag][]byte

// EncodeTLV frames one field.
// Layout:
// tag u8 | len u16be | value
func EncodeTLV(tag Tag, value []byte) ([]byte, error) {
	if len(value) > MaxTLVValueLen {
		return nil, kerr(KISR_ERR_PAYLOAD_INVALID, fmt.Sprintf("tlv %s: value too long (%d)", tag, len(value)))
	}
	out := make([]byte, tlvHeaderLen+len(value))
	out[0] = byte(tag)
	binary.BigEndian.PutUint16(out[1:3], uint16(len(value))) // #nosec G115 -- len(value) checked against 0xffff above.
	copy(out[3:], value)
	return out, nil
}

// DecodeTLV scans buf sequentially. A repeated tag keeps its last value.
func DecodeTLV(buf []byte) (TLVMap, error) {
	out := make(TLVMap)
	off := 0
	for off < len(buf) {
		if len(buf)-off < tlvHeaderLen {
			return nil, kerr(KISR_ERR_PAYLOAD_INVALID, fmt.Sprintf("tlv: truncated header at offset %d", off))
		}
		tag := Tag(buf[off])
		n := int(binary.BigEndian.Uint16(buf[off+1 : off+3]))
		off += tlvHeaderLen
		if n > len(buf)-off {
			return nil, kerr(KISR_ERR_PAYLOAD_INVALID, fmt.Sprintf("tlv %s: length %d exceeds remaining %d", tag, n, len(buf)-off))
		}
		out[tag] = append([]byte(nil), buf[off:off+n]...)
		off += n
	}
	return out, nil
}

// TLVWriter appends fields in call order and remembers the first error.
type TLVWriter struct {
	buf []byte
	err error
}

func (w *TLVWriter) Write(tag Tag, value []byte) {
	if w.err != nil {
		return
	}
	b, err := EncodeTLV(tag, value)
	if err != nil {
		w.err = err
		return
	}
	w.buf = append(w.buf, b...)
}

func (w *TLVWriter) WriteU8(tag Tag, v uint8) {
	w.Write(tag, []byte{v})
}

func (w *TLVWriter) WriteU64(tag Tag, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.Write(tag, tmp[:])
}

func (w *TLVWriter) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

type response struct {
	ID     *uint64         `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return "node rpc: " + e.Message }

// ServerInfo is the subset of getServerInfo the client consumes.
type ServerInfo struct {
	ServerVersion string `json:"serverVersion"`
	NetworkID     string `json:"networkId"`
	IsSynced      bool   `json:"isSynced"`
	VirtualDaa    Uint64 `json:"virtualDaaScore"`
	HasUtxoIndex  bool   `json:"hasUtxoIndex"`
}

type OutpointJSON struct {
	TransactionID string `json:"transactionId"`
	Index         uint32 `json:"index"`
}

type UtxoEntryJSON struct {
	Amount          Uint64          `json:"amount"`
	ScriptPublicKey ScriptPublicKey `json:"scriptPublicKey"`
	BlockDaaScore   Uint64          `json:"blockDaaScore"`
	IsCoinbase      bool            `json:"isCoinbase"`
}

type UtxosByAddressesEntry struct {
	Address   string        `json:"address"`
	Outpoint  OutpointJSON  `json:"outpoint"`
	UtxoEntry UtxoEntryJSON `json:"utxoEntry"`
}

type getUtxosByAddressesParams struct {
	Addresses []string `json:"addresses"`
}

type getUtxosByAddressesResult struct {
	Entries []UtxosByAddressesEntry `json:"entries"`
}

type submitTransactionParams struct {
	Transaction json.RawMessage `json:"transaction"`
	AllowOrphan bool            `json:"allowOrphan"`
}

type submitTransactionResult struct {
	TransactionID string `json:"transactionId"`
}

// Uint64 accepts a JSON number or a decimal string.
type Uint64 uint64

func (u *Uint64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("uint64: %w", err)
	}
	*u = Uint64(v)
	return nil
}

// ScriptPublicKey accepts either {"version":n,"scriptPublicKey":"hex"} or a
// single hex string whose first two bytes are the big-endian version.
type ScriptPublicKey struct {
	Version uint16
	Script  []byte
}

func (s *ScriptPublicKey) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		raw, err := hex.DecodeString(str)
		if err != nil {
			return fmt.Errorf("script public key: %w", err)
		}
		if len(raw) < 2 {
			return fmt.Errorf("script public key: too short")
		}
		s.Version = uint16(raw[0])<<8 | uint16(raw[1])
		s.Script = raw[2:]
		return nil
	}
	var obj struct {
		Version uint16 `json:"version"`
		Script  string `json:"scriptPublicKey"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("script public key: %w", err)
	}
	raw, err := hex.DecodeString(obj.Script)
	if err != nil {
		return fmt.Errorf("script public key: %w", err)
	}
	s.Version = obj.Version
	s.Script = raw
	return nil
}

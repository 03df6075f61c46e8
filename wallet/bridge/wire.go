package bridge

import (
	"encoding/json"
	"strconv"

	"kisr.dev/kisr/protocol"
)

// Amounts travel as decimal strings; the bridge side holds them as bigints.
type sompi uint64

func (s sompi) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(s), 10))
}

func (s *sompi) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		var n uint64
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*s = sompi(n)
		return nil
	}
	v, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return err
	}
	*s = sompi(v)
	return nil
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type outpointJSON struct {
	TransactionID string `json:"transactionId"`
	Index         uint32 `json:"index"`
}

func toOutpointJSON(o protocol.Outpoint) outpointJSON {
	return outpointJSON{TransactionID: o.TxID.String(), Index: o.Index}
}

type inputJSON struct {
	Outpoint        outpointJSON `json:"outpoint"`
	AmountSompi     sompi        `json:"amountSompi"`
	ScriptVersion   uint16       `json:"scriptVersion"`
	ScriptPublicKey string       `json:"scriptPublicKey,omitempty"`
	BlockDaaScore   uint64       `json:"blockDaaScore,omitempty"`
	IsCoinbase      bool         `json:"isCoinbase,omitempty"`
}

type networkResp struct {
	envelope
	Network string `json:"network"`
}

type createUtxoReq struct {
	Network     string `json:"network"`
	AmountSompi sompi  `json:"amountSompi"`
}

type createUtxoResp struct {
	envelope
	TxID        string `json:"txid"`
	Index       uint32 `json:"index"`
	AmountSompi sompi  `json:"amountSompi"`
	Address     string `json:"address,omitempty"`
}

type preSignReq struct {
	Network     string `json:"network"`
	TxID        string `json:"txid"`
	Index       uint32 `json:"index"`
	AmountSompi sompi  `json:"amountSompi"`
	Sighash     uint8  `json:"sighash"`
}

type preSignResp struct {
	envelope
	Signature string `json:"signature"`
}

type anchorReq struct {
	Network          string         `json:"network"`
	PayloadHex       string         `json:"payloadHex"`
	ValueSompi       sompi          `json:"valueSompi"`
	ExcludeOutpoints []outpointJSON `json:"excludeOutpoints"`
	// Inputs and FeeSompi are set when the caller selected inputs itself.
	Inputs   []inputJSON `json:"inputs,omitempty"`
	FeeSompi *sompi      `json:"feeSompi,omitempty"`
}

type txidResp struct {
	envelope
	TxID          string `json:"txid"`
	TransactionID string `json:"transactionId"`
}

func (r txidResp) id() string {
	if r.TransactionID != "" {
		return r.TransactionID
	}
	return r.TxID
}

type assembleReq struct {
	Network   string    `json:"network"`
	Input     inputJSON `json:"input"`
	PresigHex string    `json:"presigHex"`
	Sighash   uint8     `json:"sighash"`
	ToAddress string    `json:"toAddress"`
	FeeSompi  sompi     `json:"feeSompi"`
}

type assembleResp struct {
	envelope
	Transaction json.RawMessage `json:"transaction"`
}

type submitReq struct {
	Transaction json.RawMessage `json:"transaction"`
}

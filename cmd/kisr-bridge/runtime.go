package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"kisr.dev/kisr/crypto"
	"kisr.dev/kisr/protocol"
	"kisr.dev/kisr/utxo"
)

type Request struct {
	Op string `json:"op"`

	Code         string `json:"code,omitempty"`
	EnvelopeHex  string `json:"envelope,omitempty"`
	Deeplink     string `json:"deeplink,omitempty"`
	InviterAddr  string `json:"inviter_address,omitempty"`
	TxID         string `json:"txid,omitempty"`
	Index        uint32 `json:"index,omitempty"`
	Amount       uint64 `json:"amount,omitempty"`
	PresigHex    string `json:"presig,omitempty"`
	PubKeyHex    string `json:"inviter_pubkey,omitempty"`
	Network      string `json:"network,omitempty"`
	Memo         string `json:"memo,omitempty"`
	Timestamp    uint64 `json:"timestamp,omitempty"`
	RandomSeed   string `json:"random_seed,omitempty"`
	EntropyHex   string `json:"entropy,omitempty"`
	CheapKDF     bool   `json:"cheap_kdf,omitempty"`
	Target       uint64 `json:"target,omitempty"`
	FeeRate      uint64 `json:"fee_rate,omitempty"`
	PayloadLen   int    `json:"payload_len,omitempty"`
	InputCount   int    `json:"input_count,omitempty"`
	OutputScript []int  `json:"output_script_lens,omitempty"`

	Utxos   []UtxoJSON     `json:"utxos,omitempty"`
	Exclude []OutpointJSON `json:"exclude,omitempty"`
}

type OutpointJSON struct {
	TxID  string `json:"txid"`
	Index uint32 `json:"index"`
}

type UtxoJSON struct {
	TxID   string `json:"txid"`
	Index  uint32 `json:"index"`
	Amount uint64 `json:"amount"`
}

type PayloadJSON struct {
	TxID          string `json:"txid"`
	Index         uint32 `json:"index"`
	Amount        uint64 `json:"amount"`
	Presig        string `json:"presig"`
	Sighash       uint8  `json:"sighash"`
	InviterPubKey string `json:"inviter_pubkey,omitempty"`
	Network       uint8  `json:"network"`
	Timestamp     uint64 `json:"timestamp"`
	Memo          string `json:"memo,omitempty"`
}

type Response struct {
	Ok            bool           `json:"ok"`
	Err           string         `json:"err,omitempty"`
	Code          string         `json:"code,omitempty"`
	Valid         *bool          `json:"valid,omitempty"`
	EnvelopeHex   string         `json:"envelope,omitempty"`
	Payload       *PayloadJSON   `json:"payload,omitempty"`
	Version       uint8          `json:"version,omitempty"`
	SaltHex       string         `json:"salt,omitempty"`
	NonceHex      string         `json:"nonce,omitempty"`
	CiphertextLen int            `json:"ciphertext_len,omitempty"`
	Deeplink      string         `json:"deeplink,omitempty"`
	TxID          string         `json:"txid,omitempty"`
	InviterAddr   string         `json:"inviter_address,omitempty"`
	Selected      []OutpointJSON `json:"selected,omitempty"`
	Total         uint64         `json:"total,omitempty"`
	Fee           uint64         `json:"fee,omitempty"`
	Mass          uint64         `json:"mass,omitempty"`
}

func writeResp(w io.Writer, resp Response) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(resp)
}

// writeKISRErr reports coded failures by their code alone so that other
// implementations can compare results verbatim.
func writeKISRErr(w io.Writer, err error) {
	if code, ok := protocol.CodeOf(err); ok {
		writeResp(w, Response{Ok: false, Err: string(code)})
		return
	}
	writeResp(w, Response{Ok: false, Err: err.Error()})
}

func boolPtr(v bool) *bool { return &v }

// requestProvider picks the entropy and KDF cost for a request. Fixed
// entropy or a seed make envelopes reproducible across implementations.
func requestProvider(req Request) (crypto.CryptoProvider, error) {
	var p crypto.StdCryptoProvider
	switch {
	case req.EntropyHex != "":
		b, err := hex.DecodeString(req.EntropyHex)
		if err != nil {
			return nil, fmt.Errorf("bad entropy")
		}
		p.Rand = bytes.NewReader(b)
	case req.RandomSeed != "":
		p.Rand = crypto.NewShakeReader("kisr-bridge", []byte(req.RandomSeed))
	}
	if req.CheapKDF {
		return cheapKDF{p}, nil
	}
	return p, nil
}

// cheapKDF keeps framing and AEAD real but runs Argon2id at its minimum cost.
type cheapKDF struct{ crypto.StdCryptoProvider }

func (c cheapKDF) Argon2id(password, salt []byte, _ uint32, _ uint64, keyLen uint32) ([]byte, error) {
	return c.StdCryptoProvider.Argon2id(password, salt, 1, 8*1024, keyLen)
}

func parseOutpoints(items []OutpointJSON) ([]protocol.Outpoint, error) {
	out := make([]protocol.Outpoint, 0, len(items))
	for _, it := range items {
		h, err := protocol.ParseTxID(it.TxID)
		if err != nil {
			return nil, fmt.Errorf("bad txid")
		}
		out = append(out, protocol.Outpoint{TxID: h, Index: it.Index})
	}
	return out, nil
}

func parseUtxos(items []UtxoJSON) ([]utxo.UTXO, error) {
	out := make([]utxo.UTXO, 0, len(items))
	for _, it := range items {
		h, err := protocol.ParseTxID(it.TxID)
		if err != nil {
			return nil, fmt.Errorf("bad txid")
		}
		out = append(out, utxo.UTXO{
			Outpoint: protocol.Outpoint{TxID: h, Index: it.Index},
			Amount:   it.Amount,
		})
	}
	return out, nil
}

func outputsFromLens(lens []int) []utxo.Output {
	outs := make([]utxo.Output, 0, len(lens))
	for _, n := range lens {
		if n < 0 {
			n = 0
		}
		outs = append(outs, utxo.Output{ScriptPublicKey: make([]byte, n)})
	}
	return outs
}

func runFromStdin(in io.Reader, out io.Writer) {
	var req Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		writeResp(out, Response{Ok: false, Err: fmt.Sprintf("bad request: %v", err)})
		return
	}

	switch req.Op {
	case "generate_code":
		p, err := requestProvider(req)
		if err != nil {
			writeResp(out, Response{Ok: false, Err: err.Error()})
			return
		}
		code, err := protocol.GenerateCode(p)
		if err != nil {
			writeKISRErr(out, err)
			return
		}
		writeResp(out, Response{Ok: true, Code: code})

	case "normalize_code":
		code, ok := protocol.NormalizeCode(req.Code)
		if !ok {
			writeResp(out, Response{Ok: false, Err: string(protocol.KISR_ERR_INVALID_CODE)})
			return
		}
		writeResp(out, Response{Ok: true, Code: code})

	case "validate_code":
		writeResp(out, Response{Ok: true, Valid: boolPtr(protocol.ValidateCode(req.Code))})

	case "build_envelope":
		p, err := requestProvider(req)
		if err != nil {
			writeResp(out, Response{Ok: false, Err: err.Error()})
			return
		}
		txid, err := protocol.ParseTxID(req.TxID)
		if err != nil {
			writeResp(out, Response{Ok: false, Err: "bad txid"})
			return
		}
		presig, err := hex.DecodeString(req.PresigHex)
		if err != nil {
			writeResp(out, Response{Ok: false, Err: "bad presig"})
			return
		}
		pubkey, err := hex.DecodeString(req.PubKeyHex)
		if err != nil {
			writeResp(out, Response{Ok: false, Err: "bad inviter_pubkey"})
			return
		}
		network := protocol.Mainnet
		if req.Network != "" {
			if network, err = protocol.ParseNetwork(req.Network); err != nil {
				writeResp(out, Response{Ok: false, Err: "bad network"})
				return
			}
		}
		var opts []protocol.EnvelopeOption
		if req.Timestamp != 0 {
			ts := time.Unix(int64(req.Timestamp), 0) // #nosec G115 -- test vector timestamps are small.
			opts = append(opts, protocol.WithClock(func() time.Time { return ts }))
		}
		codec, err := protocol.NewEnvelopeCodec(p, opts...)
		if err != nil {
			writeKISRErr(out, err)
			return
		}
		env, err := codec.Build(req.Code, protocol.BuildParams{
			Outpoint:      protocol.Outpoint{TxID: txid, Index: req.Index},
			Amount:        req.Amount,
			Presig:        presig,
			Network:       network,
			Memo:          req.Memo,
			InviterPubKey: pubkey,
		})
		if err != nil {
			writeKISRErr(out, err)
			return
		}
		writeResp(out, Response{Ok: true, EnvelopeHex: hex.EncodeToString(env)})

	case "decrypt_envelope":
		env, err := hex.DecodeString(req.EnvelopeHex)
		if err != nil {
			writeResp(out, Response{Ok: false, Err: "bad envelope hex"})
			return
		}
		p, err := requestProvider(req)
		if err != nil {
			writeResp(out, Response{Ok: false, Err: err.Error()})
			return
		}
		codec, err := protocol.NewEnvelopeCodec(p)
		if err != nil {
			writeKISRErr(out, err)
			return
		}
		dec, err := codec.Decrypt(req.Code, env)
		if err != nil {
			writeKISRErr(out, err)
			return
		}
		writeResp(out, Response{Ok: true, Payload: &PayloadJSON{
			TxID:          dec.Outpoint.TxID.String(),
			Index:         dec.Outpoint.Index,
			Amount:        dec.Amount,
			Presig:        hex.EncodeToString(dec.Presig),
			Sighash:       uint8(dec.Sighash),
			InviterPubKey: hex.EncodeToString(dec.InviterPubKey),
			Network:       dec.Network.Byte(),
			Timestamp:     dec.Timestamp,
			Memo:          dec.Memo,
		}})

	case "inspect_envelope":
		env, err := hex.DecodeString(req.EnvelopeHex)
		if err != nil {
			writeResp(out, Response{Ok: false, Err: "bad envelope hex"})
			return
		}
		h, err := protocol.InspectEnvelope(env)
		if err != nil {
			writeKISRErr(out, err)
			return
		}
		writeResp(out, Response{
			Ok:            true,
			Version:       h.Version,
			SaltHex:       hex.EncodeToString(h.Salt[:]),
			NonceHex:      hex.EncodeToString(h.Nonce[:]),
			CiphertextLen: h.CiphertextLen,
		})

	case "build_deeplink":
		writeResp(out, Response{Ok: true, Deeplink: protocol.BuildDeeplink(req.Code, req.TxID, req.InviterAddr)})

	case "parse_deeplink":
		dl, err := protocol.ParseDeeplink(req.Deeplink)
		if err != nil {
			writeKISRErr(out, err)
			return
		}
		writeResp(out, Response{Ok: true, TxID: dl.TxID, Code: dl.Code, InviterAddr: dl.InviterAddress})

	case "select_utxos":
		cands, err := parseUtxos(req.Utxos)
		if err != nil {
			writeResp(out, Response{Ok: false, Err: err.Error()})
			return
		}
		excl, err := parseOutpoints(req.Exclude)
		if err != nil {
			writeResp(out, Response{Ok: false, Err: err.Error()})
			return
		}
		sel, err := utxo.Select(context.Background(), utxo.SelectRequest{
			Candidates: cands,
			Target:     req.Target,
			FeeRate:    req.FeeRate,
			Outputs:    outputsFromLens(req.OutputScript),
			PayloadLen: req.PayloadLen,
			Exclude:    excl,
			Estimator:  utxo.MassEstimator{},
		})
		if err != nil {
			writeKISRErr(out, err)
			return
		}
		resp := Response{Ok: true, Total: sel.Total, Fee: sel.Fee}
		for _, in := range sel.Inputs {
			resp.Selected = append(resp.Selected, OutpointJSON{TxID: in.Outpoint.TxID.String(), Index: in.Outpoint.Index})
		}
		writeResp(out, resp)

	case "estimate_fee":
		if req.InputCount < 0 || req.PayloadLen < 0 {
			writeResp(out, Response{Ok: false, Err: "bad counts"})
			return
		}
		fr := utxo.FeeRequest{
			Inputs:     make([]utxo.UTXO, req.InputCount),
			Outputs:    outputsFromLens(req.OutputScript),
			PayloadLen: req.PayloadLen,
			FeeRate:    req.FeeRate,
		}
		var est utxo.MassEstimator
		fee, err := est.EstimateFee(context.Background(), fr)
		if err != nil {
			writeResp(out, Response{Ok: false, Err: err.Error()})
			return
		}
		writeResp(out, Response{Ok: true, Fee: fee, Mass: est.Mass(fr)})

	default:
		writeResp(out, Response{Ok: false, Err: "unknown op"})
	}
}

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"kisr.dev/kisr/crypto"
	"kisr.dev/kisr/protocol"
	"kisr.dev/kisr/utxo"
)

// Vectors are shaped as kisr-bridge requests plus the expected response, so
// another implementation can replay them through its own bridge.

// vectorTime is baked into every envelope timestamp.
var vectorTime = time.Unix(1_700_000_000, 0)

const vectorTxID = "f1e2d3c4b5a697881223344556677889aabbccddeeff00112233445566778899"

type fixtureFile struct {
	Gate    string           `json:"gate"`
	Vectors []map[string]any `json:"vectors"`
}

func mustWriteFixture(path string, f *fixtureFile) {
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		fatalf("marshal %s: %v", path, err)
	}
	b = append(b, '\n')
	if err := os.WriteFile(path, b, 0o600); err != nil {
		fatalf("write %s: %v", path, err)
	}
}

func buildAll() []*fixtureFile {
	return []*fixtureFile{
		codeVectors(),
		envelopeVectors(),
		deeplinkVectors(),
		feeVectors(),
	}
}

func seededProvider(seed string) crypto.StdCryptoProvider {
	return crypto.StdCryptoProvider{Rand: crypto.NewShakeReader("kisr-bridge", []byte(seed))}
}

func codeVectors() *fixtureFile {
	f := &fixtureFile{Gate: "KISR-CODE"}
	for i, seed := range []string{"code-0", "code-1", "code-2"} {
		code, err := protocol.GenerateCode(seededProvider(seed))
		if err != nil {
			fatalf("generate code %s: %v", seed, err)
		}
		f.Vectors = append(f.Vectors, map[string]any{
			"id": fmt.Sprintf("KC-GEN-%02d", i), "op": "generate_code", "random_seed": seed,
			"expect_ok": true, "expect_code": code,
		})
	}
	cases := []struct {
		in   string
		want string
	}{
		{"KISR-ABCDEFGH", "KISR-ABCDEFGH"},
		{"kisr-abcd-efgh", "KISR-ABCDEFGH"},
		{"  kisr abcd efgh ", "KISR-ABCDEFGH"},
		{"ABCDEFGH", "KISR-ABCDEFGH"},
		{"KISR:23456789", "KISR-23456789"},
		{"KISR-ABCDEFG", ""},
		{"KISR-ABCDEFGI", ""},
		{"KISR-ABCDEFG0", ""},
		{"KISR-ABCDÉFGH", ""},
	}
	for i, tc := range cases {
		v := map[string]any{"id": fmt.Sprintf("KC-NORM-%02d", i), "op": "normalize_code", "code": tc.in}
		if tc.want == "" {
			v["expect_ok"] = false
			v["expect_err"] = string(protocol.KISR_ERR_INVALID_CODE)
		} else {
			v["expect_ok"] = true
			v["expect_code"] = tc.want
		}
		f.Vectors = append(f.Vectors, v)
	}
	return f
}

type envelopeCase struct {
	id      string
	seed    string
	code    string
	index   uint32
	amount  uint64
	presig  string
	network protocol.NetworkID
	memo    string
	pubkey  string
}

var envelopeCases = []envelopeCase{
	{id: "KE-01", seed: "env-1", code: "KISR-ABCDEFGH", index: 0, amount: 150_000_000,
		presig: strings.Repeat("ab", 65), network: protocol.Mainnet},
	{id: "KE-02", seed: "env-2", code: "KISR-23456789", index: 3, amount: 1,
		presig: strings.Repeat("cd", 65), network: protocol.Testnet, memo: "welcome to kaspa"},
	{id: "KE-03", seed: "env-3", code: "KISR-ZZZZ2222", index: 1, amount: 500_000_000,
		presig: strings.Repeat("01", 65), network: protocol.Mainnet, memo: "привет 🙂",
		pubkey: "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"},
}

func envelopeVectors() *fixtureFile {
	f := &fixtureFile{Gate: "KISR-ENVELOPE"}
	txid, err := protocol.ParseTxID(vectorTxID)
	if err != nil {
		fatalf("vector txid: %v", err)
	}
	for _, tc := range envelopeCases {
		codec, err := protocol.NewEnvelopeCodec(seededProvider(tc.seed), protocol.WithClock(func() time.Time { return vectorTime }))
		if err != nil {
			fatalf("%s: codec: %v", tc.id, err)
		}
		presig, _ := hex.DecodeString(tc.presig)
		pubkey, _ := hex.DecodeString(tc.pubkey)
		env, err := codec.Build(tc.code, protocol.BuildParams{
			Outpoint:      protocol.Outpoint{TxID: txid, Index: tc.index},
			Amount:        tc.amount,
			Presig:        presig,
			Network:       tc.network,
			Memo:          tc.memo,
			InviterPubKey: pubkey,
		})
		if err != nil {
			fatalf("%s: build: %v", tc.id, err)
		}
		envHex := hex.EncodeToString(env)
		f.Vectors = append(f.Vectors,
			map[string]any{
				"id": tc.id + "-BUILD", "op": "build_envelope", "code": tc.code, "txid": vectorTxID,
				"index": tc.index, "amount": tc.amount, "presig": tc.presig, "inviter_pubkey": tc.pubkey,
				"network": tc.network.String(), "memo": tc.memo, "timestamp": vectorTime.Unix(),
				"random_seed": tc.seed, "expect_ok": true, "expect_envelope": envHex,
			},
			map[string]any{
				"id": tc.id + "-OPEN", "op": "decrypt_envelope", "code": tc.code, "envelope": envHex,
				"expect_ok": true,
				"expect_payload": map[string]any{
					"txid": vectorTxID, "index": tc.index, "amount": tc.amount, "presig": tc.presig,
					"sighash": uint8(protocol.SighashNoneAnyoneCanPay), "inviter_pubkey": tc.pubkey,
					"network": tc.network.Byte(), "timestamp": vectorTime.Unix(), "memo": tc.memo,
				},
			},
		)
		if tc.id == "KE-01" {
			tampered := append([]byte(nil), env...)
			tampered[len(tampered)-1] ^= 0x01
			f.Vectors = append(f.Vectors,
				map[string]any{
					"id": "KE-01-WRONG-CODE", "op": "decrypt_envelope", "code": "KISR-ABCDEFGJ", "envelope": envHex,
					"expect_ok": false, "expect_err": string(protocol.KISR_ERR_DECRYPTION_FAILED),
				},
				map[string]any{
					"id": "KE-01-TAMPERED", "op": "decrypt_envelope", "code": tc.code, "envelope": hex.EncodeToString(tampered),
					"expect_ok": false, "expect_err": string(protocol.KISR_ERR_DECRYPTION_FAILED),
				},
				map[string]any{
					"id": "KE-01-TRUNCATED", "op": "inspect_envelope", "envelope": envHex[:2*(protocol.MinEnvelopeLen-1)],
					"expect_ok": false, "expect_err": string(protocol.KISR_ERR_PAYLOAD_INVALID),
				},
			)
		}
	}
	return f
}

func deeplinkVectors() *fixtureFile {
	f := &fixtureFile{Gate: "KISR-DEEPLINK"}
	add := func(v map[string]any) { f.Vectors = append(f.Vectors, v) }
	add(map[string]any{
		"id": "KD-BUILD-01", "op": "build_deeplink", "code": "KISR-ABCDEFGH", "txid": vectorTxID,
		"expect_ok": true, "expect_deeplink": protocol.BuildDeeplink("KISR-ABCDEFGH", vectorTxID, ""),
	})
	add(map[string]any{
		"id": "KD-BUILD-02", "op": "build_deeplink", "txid": vectorTxID, "inviter_address": "kaspa:qqinviter",
		"expect_ok": true, "expect_deeplink": protocol.BuildDeeplink("", vectorTxID, "kaspa:qqinviter"),
	})
	parses := []struct {
		link    string
		ok      bool
		code    string
		inviter string
	}{
		{"kaspa:redeem?code=KISR-ABCDEFGH&txid=" + vectorTxID, true, "KISR-ABCDEFGH", ""},
		{"KASPA:redeem?TxId=" + vectorTxID + "&CODE=KISR-ABCDEFGH", true, "KISR-ABCDEFGH", ""},
		{"kaspa:kaspa:qqinviter/redeem?txid=" + vectorTxID, true, "", "kaspa:qqinviter"},
		{"bitcoin:redeem?txid=" + vectorTxID, false, "", ""},
		{"kaspa:send?txid=" + vectorTxID, false, "", ""},
		{"kaspa:redeem?code=KISR-ABCDEFGH", false, "", ""},
	}
	for i, tc := range parses {
		v := map[string]any{"id": fmt.Sprintf("KD-PARSE-%02d", i), "op": "parse_deeplink", "deeplink": tc.link, "expect_ok": tc.ok}
		if tc.ok {
			v["expect_txid"] = vectorTxID
			v["expect_code"] = tc.code
			v["expect_inviter_address"] = tc.inviter
		} else {
			v["expect_err"] = string(protocol.KISR_ERR_INVALID_DEEPLINK)
		}
		add(v)
	}
	return f
}

func feeVectors() *fixtureFile {
	f := &fixtureFile{Gate: "KISR-FEE"}
	var est utxo.MassEstimator
	shapes := []struct {
		inputs     int
		payloadLen int
		rate       uint64
	}{
		{1, 0, 0},
		{2, 0, 0},
		{1, 126, 0},
		{3, 200, 2000},
	}
	for i, s := range shapes {
		req := utxo.FeeRequest{Inputs: make([]utxo.UTXO, s.inputs), PayloadLen: s.payloadLen, FeeRate: s.rate}
		fee, err := est.EstimateFee(context.Background(), req)
		if err != nil {
			fatalf("fee vector %d: %v", i, err)
		}
		f.Vectors = append(f.Vectors, map[string]any{
			"id": fmt.Sprintf("KF-EST-%02d", i), "op": "estimate_fee", "input_count": s.inputs, "payload_len": s.payloadLen,
			"fee_rate": s.rate, "expect_ok": true, "expect_fee": fee, "expect_mass": est.Mass(req),
		})
	}

	txid, _ := protocol.ParseTxID(vectorTxID)
	cands := []utxo.UTXO{
		{Outpoint: protocol.Outpoint{TxID: txid, Index: 0}, Amount: 150_000_000},
		{Outpoint: protocol.Outpoint{TxID: txid, Index: 1}, Amount: 30_000_000},
		{Outpoint: protocol.Outpoint{TxID: txid, Index: 2}, Amount: 30_000_000},
		{Outpoint: protocol.Outpoint{TxID: txid, Index: 3}, Amount: 900_000_000},
	}
	utxosJSON := make([]map[string]any, 0, len(cands))
	for _, c := range cands {
		utxosJSON = append(utxosJSON, map[string]any{"txid": vectorTxID, "index": c.Outpoint.Index, "amount": c.Amount})
	}
	selects := []struct {
		target  uint64
		exclude []uint32
	}{
		{50_000_000, nil},
		{500_000_000, []uint32{0}},
		{2_000_000_000, nil},
	}
	for i, s := range selects {
		var excl []protocol.Outpoint
		exclJSON := []map[string]any{}
		for _, idx := range s.exclude {
			excl = append(excl, protocol.Outpoint{TxID: txid, Index: idx})
			exclJSON = append(exclJSON, map[string]any{"txid": vectorTxID, "index": idx})
		}
		v := map[string]any{
			"id": fmt.Sprintf("KF-SEL-%02d", i), "op": "select_utxos", "target": s.target,
			"utxos": utxosJSON, "exclude": exclJSON,
		}
		sel, err := utxo.Select(context.Background(), utxo.SelectRequest{
			Candidates: cands, Target: s.target, Exclude: excl, Estimator: est,
		})
		if err != nil {
			code, _ := protocol.CodeOf(err)
			v["expect_ok"] = false
			v["expect_err"] = string(code)
		} else {
			picked := make([]map[string]any, 0, len(sel.Inputs))
			for _, in := range sel.Inputs {
				picked = append(picked, map[string]any{"txid": vectorTxID, "index": in.Outpoint.Index})
			}
			v["expect_ok"] = true
			v["expect_selected"] = picked
			v["expect_total"] = sel.Total
			v["expect_fee"] = sel.Fee
		}
		f.Vectors = append(f.Vectors, v)
	}
	return f
}

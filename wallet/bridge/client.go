// Package bridge adapts an external signer service to invite.WalletAdapter.
// The service owns keys and transaction construction; this side only moves
// amounts, outpoints and opaque transactions over JSON.
package bridge

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"kisr.dev/kisr/invite"
	"kisr.dev/kisr/protocol"
	"kisr.dev/kisr/utxo"
)

const maxRespBytes = 4 << 20

// Ledger is the node surface the bridge uses for input selection and
// broadcasting. node.Client satisfies it.
type Ledger interface {
	GetUtxosByAddress(ctx context.Context, address string) ([]utxo.UTXO, error)
	SubmitTransaction(ctx context.Context, rawTx []byte) (chainhash.Hash, error)
	EstimateFee(ctx context.Context, req utxo.FeeRequest) (uint64, error)
}

type Config struct {
	URL   string
	Token string
	// Network pins the wallet network; when unset the bridge is asked.
	Network *protocol.NetworkID
	// Node and Address enable local anchor input selection and node
	// broadcasting. Either may be unset.
	Node    Ledger
	Address string
	FeeRate uint64
	Timeout time.Duration
	HTTP    *http.Client
	Logger  *slog.Logger
}

type Client struct {
	cfg    Config
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

var _ invite.WalletAdapter = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("bridge: invalid url %q", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	c := &Client{cfg: cfg, base: u, http: cfg.HTTP, logger: cfg.Logger}
	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

func (c *Client) CurrentNetworkID(ctx context.Context) (protocol.NetworkID, error) {
	if c.cfg.Network != nil {
		return *c.cfg.Network, nil
	}
	var resp networkResp
	if err := c.post(ctx, "network", struct{}{}, &resp); err != nil {
		return 0, err
	}
	n, err := protocol.ParseNetwork(resp.Network)
	if err != nil {
		return 0, protocol.AdapterError("network", err)
	}
	return n, nil
}

func (c *Client) CreateSelfUTXO(ctx context.Context, amount uint64) (invite.FundedOutput, error) {
	network, err := c.CurrentNetworkID(ctx)
	if err != nil {
		return invite.FundedOutput{}, err
	}
	var resp createUtxoResp
	if err := c.post(ctx, "createUtxoToSelf", createUtxoReq{Network: network.String(), AmountSompi: sompi(amount)}, &resp); err != nil {
		return invite.FundedOutput{}, err
	}
	txid, err := protocol.ParseTxID(resp.TxID)
	if err != nil {
		return invite.FundedOutput{}, protocol.AdapterError("createUtxoToSelf", err)
	}
	out := invite.FundedOutput{
		Outpoint: protocol.Outpoint{TxID: txid, Index: resp.Index},
		Amount:   uint64(resp.AmountSompi),
	}
	c.logger.Info("bridge: funded invite output", "outpoint", out.Outpoint.String(), "amount", out.Amount)
	return out, nil
}

func (c *Client) PreSignInput(ctx context.Context, out invite.FundedOutput, sighash protocol.SighashType) ([]byte, error) {
	network, err := c.CurrentNetworkID(ctx)
	if err != nil {
		return nil, err
	}
	req := preSignReq{
		Network:     network.String(),
		TxID:        out.Outpoint.TxID.String(),
		Index:       out.Outpoint.Index,
		AmountSompi: sompi(out.Amount),
		Sighash:     uint8(sighash),
	}
	var resp preSignResp
	if err := c.post(ctx, "preSignCreatedUtxo", req, &resp); err != nil {
		return nil, err
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(resp.Signature, "0x"))
	if err != nil || len(sig) == 0 {
		return nil, protocol.AdapterError("preSignCreatedUtxo", fmt.Errorf("bad signature %q", resp.Signature))
	}
	return sig, nil
}

// PublishAnchorTransaction selects inputs locally when a node and wallet
// address are configured, and otherwise lets the bridge pick them.
func (c *Client) PublishAnchorTransaction(ctx context.Context, req invite.AnchorRequest) (chainhash.Hash, error) {
	network, err := c.CurrentNetworkID(ctx)
	if err != nil {
		return chainhash.Hash{}, err
	}
	body := anchorReq{
		Network:    network.String(),
		PayloadHex: hex.EncodeToString(req.Payload),
		ValueSompi: sompi(req.Value),
	}
	for _, o := range req.Exclude {
		body.ExcludeOutpoints = append(body.ExcludeOutpoints, toOutpointJSON(o))
	}

	if c.cfg.Node != nil && c.cfg.Address != "" {
		sel, err := c.selectAnchorInputs(ctx, req)
		if err != nil {
			return chainhash.Hash{}, err
		}
		for _, in := range sel.Inputs {
			body.Inputs = append(body.Inputs, toInputJSON(in))
		}
		fee := sompi(sel.Fee)
		body.FeeSompi = &fee
		c.logger.Debug("bridge: anchor inputs selected", "inputs", len(sel.Inputs), "total", sel.Total, "fee", sel.Fee)
	}

	var resp txidResp
	if err := c.post(ctx, "createAnchorToSelfWithPayload", body, &resp); err != nil {
		return chainhash.Hash{}, err
	}
	h, err := protocol.ParseTxID(resp.id())
	if err != nil {
		return chainhash.Hash{}, protocol.AdapterError("createAnchorToSelfWithPayload", err)
	}
	return h, nil
}

func (c *Client) selectAnchorInputs(ctx context.Context, req invite.AnchorRequest) (*utxo.Selection, error) {
	candidates, err := c.cfg.Node.GetUtxosByAddress(ctx, c.cfg.Address)
	if err != nil {
		return nil, protocol.AdapterError("anchor utxos", err)
	}
	return utxo.Select(ctx, utxo.SelectRequest{
		Candidates: candidates,
		Target:     req.Value,
		FeeRate:    c.cfg.FeeRate,
		Outputs:    []utxo.Output{{Amount: req.Value, ScriptPublicKey: make([]byte, utxo.P2PKScriptLen)}},
		PayloadLen: len(req.Payload),
		Exclude:    req.Exclude,
		Estimator:  c.cfg.Node,
	})
}

func (c *Client) AssembleRedemption(ctx context.Context, req invite.RedemptionRequest) ([]byte, error) {
	body := assembleReq{
		Network:   req.Network.String(),
		Input:     toInputJSON(req.Input),
		PresigHex: hex.EncodeToString(req.Presig),
		Sighash:   uint8(req.Sighash),
		ToAddress: req.ToAddress,
		FeeSompi:  sompi(req.Fee),
	}
	var resp assembleResp
	if err := c.post(ctx, "assembleRedemption", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Transaction) == 0 || !json.Valid(resp.Transaction) {
		return nil, protocol.AdapterError("assembleRedemption", errors.New("bridge returned no transaction"))
	}
	return []byte(resp.Transaction), nil
}

func (c *Client) BroadcastRedemption(ctx context.Context, rawTx []byte) (chainhash.Hash, error) {
	if c.cfg.Node != nil {
		return c.cfg.Node.SubmitTransaction(ctx, rawTx)
	}
	if !json.Valid(rawTx) {
		return chainhash.Hash{}, protocol.AdapterError("submitTransaction", errors.New("transaction is not valid JSON"))
	}
	var resp txidResp
	if err := c.post(ctx, "submitTransaction", submitReq{Transaction: rawTx}, &resp); err != nil {
		return chainhash.Hash{}, err
	}
	h, err := protocol.ParseTxID(resp.id())
	if err != nil {
		return chainhash.Hash{}, protocol.AdapterError("submitTransaction", err)
	}
	return h, nil
}

func toInputJSON(u utxo.UTXO) inputJSON {
	in := inputJSON{
		Outpoint:      toOutpointJSON(u.Outpoint),
		AmountSompi:   sompi(u.Amount),
		ScriptVersion: u.ScriptVersion,
		BlockDaaScore: u.BlockDaaScore,
		IsCoinbase:    u.IsCoinbase,
	}
	if len(u.ScriptPublicKey) > 0 {
		in.ScriptPublicKey = hex.EncodeToString(u.ScriptPublicKey)
	}
	return in
}

type successReporter interface {
	ok() (bool, string)
}

func (e envelope) ok() (bool, string) { return e.Success, e.Error }

// post sends body to /<op> and decodes into out. Transport failures, non-2xx
// statuses and success=false all surface as KISR_ERR_ADAPTER.
func (c *Client) post(ctx context.Context, op string, body any, out successReporter) error {
	b, err := json.Marshal(body)
	if err != nil {
		return protocol.AdapterError(op, err)
	}
	endpoint := c.base.JoinPath(op).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return protocol.AdapterError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return protocol.AdapterError(op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRespBytes))
	if err != nil {
		return protocol.AdapterError(op, err)
	}
	c.logger.Debug("bridge: call", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))

	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode/100 != 2 {
			return protocol.AdapterError(op, fmt.Errorf("bridge status %d", resp.StatusCode))
		}
		return protocol.AdapterError(op, fmt.Errorf("decode response: %w", err))
	}
	success, msg := out.ok()
	if resp.StatusCode/100 != 2 || !success {
		if msg == "" {
			msg = fmt.Sprintf("bridge status %d", resp.StatusCode)
		}
		return protocol.AdapterError(op, errors.New(msg))
	}
	return nil
}

package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"kisr.dev/kisr/invite"
	"kisr.dev/kisr/node/explorer"
	"kisr.dev/kisr/node/rpc"
	"kisr.dev/kisr/protocol"
	"kisr.dev/kisr/utxo"
)

// PayloadSource resolves anchor payloads.
type PayloadSource interface {
	FetchTransactionPayload(ctx context.Context, txid chainhash.Hash, network protocol.NetworkID) ([]byte, error)
}

// LedgerRPC is the node surface used for UTXO queries and submission.
type LedgerRPC interface {
	GetUtxosByAddresses(ctx context.Context, addresses []string) ([]rpc.UtxosByAddressesEntry, error)
	SubmitTransaction(ctx context.Context, tx json.RawMessage) (chainhash.Hash, error)
}

// Client is the invite.NodeClient backed by a kaspad wRPC connection for
// ledger state and an explorer for payload lookups. Fees are estimated locally.
type Client struct {
	RPC       LedgerRPC
	Payloads  PayloadSource
	Estimator utxo.MassEstimator
	FeeRate   uint64
	Logger    *slog.Logger
}

var _ invite.NodeClient = (*Client)(nil)

// NewClient wires the rpc and explorer clients from cfg. The returned close
// func releases the websocket.
func NewClient(cfg Config, network protocol.NetworkID, logger *slog.Logger) (*Client, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rcfg := rpc.DefaultConfig(cfg.NodeURL)
	rcfg.RequireSynced = cfg.RequireSynced
	rcfg.Logger = logger
	rc, err := rpc.New(rcfg)
	if err != nil {
		return nil, nil, err
	}
	ec, err := explorer.New(explorer.Config{
		BaseURL:  cfg.ExplorerBaseURL(network),
		RPS:      cfg.ExplorerRPS,
		CacheLen: cfg.PayloadCacheLen,
		Logger:   logger,
	})
	if err != nil {
		_ = rc.Close()
		return nil, nil, err
	}
	return &Client{
		RPC:      rc,
		Payloads: ec,
		FeeRate:  cfg.FeeRate,
		Logger:   logger,
	}, rc.Close, nil
}

func (c *Client) FetchTransactionPayload(ctx context.Context, txid chainhash.Hash, network protocol.NetworkID) ([]byte, error) {
	if c.Payloads == nil {
		return nil, protocol.NewError(protocol.KISR_ERR_ADAPTER, "no payload source configured")
	}
	return c.Payloads.FetchTransactionPayload(ctx, txid, network)
}

func (c *Client) GetUtxosByAddress(ctx context.Context, address string) ([]utxo.UTXO, error) {
	if c.RPC == nil {
		return nil, protocol.NewError(protocol.KISR_ERR_ADAPTER, "no node configured")
	}
	entries, err := c.RPC.GetUtxosByAddresses(ctx, []string{address})
	if err != nil {
		return nil, err
	}
	out := rpc.ToUTXOs(entries)
	if len(out) != len(entries) && c.Logger != nil {
		c.Logger.Warn("node: skipped malformed utxo entries", "address", address, "skipped", len(entries)-len(out))
	}
	return out, nil
}

// SubmitTransaction expects rawTx to be the RPC JSON transaction object the
// wallet assembled.
func (c *Client) SubmitTransaction(ctx context.Context, rawTx []byte) (chainhash.Hash, error) {
	if c.RPC == nil {
		return chainhash.Hash{}, protocol.NewError(protocol.KISR_ERR_ADAPTER, "no node configured")
	}
	return c.RPC.SubmitTransaction(ctx, json.RawMessage(rawTx))
}

func (c *Client) EstimateFee(ctx context.Context, req utxo.FeeRequest) (uint64, error) {
	if req.FeeRate == 0 {
		req.FeeRate = c.FeeRate
	}
	fee, err := c.Estimator.EstimateFee(ctx, req)
	if err != nil {
		return 0, protocol.AdapterError("estimate fee", fmt.Errorf("mass: %w", err))
	}
	return fee, nil
}

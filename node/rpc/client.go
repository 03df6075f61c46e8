package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/gorilla/websocket"

	"kisr.dev/kisr/protocol"
	"kisr.dev/kisr/utxo"
)

type Config struct {
	URL            string
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	// RequireSynced rejects a freshly dialled node that reports isSynced=false.
	RequireSynced bool
	Logger        *slog.Logger
}

func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		DialTimeout:    10 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// Client speaks Kaspa wRPC JSON over one websocket. Calls are serialized.
// A transport failure drops the connection and the next call dials again;
// the failed call itself is not repeated.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rpc: url required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	c := &Client{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		logger: cfg.Logger,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) GetServerInfo(ctx context.Context) (*ServerInfo, error) {
	var out ServerInfo
	if err := c.call(ctx, "getServerInfo", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetUtxosByAddresses(ctx context.Context, addresses []string) ([]UtxosByAddressesEntry, error) {
	var out getUtxosByAddressesResult
	if err := c.call(ctx, "getUtxosByAddresses", getUtxosByAddressesParams{Addresses: addresses}, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// SubmitTransaction submits an RPC-shaped transaction object.
func (c *Client) SubmitTransaction(ctx context.Context, tx json.RawMessage) (chainhash.Hash, error) {
	if !json.Valid(tx) {
		return chainhash.Hash{}, protocol.AdapterError("submitTransaction", errors.New("transaction is not valid JSON"))
	}
	var out submitTransactionResult
	if err := c.call(ctx, "submitTransaction", submitTransactionParams{Transaction: tx}, &out); err != nil {
		return chainhash.Hash{}, err
	}
	h, err := protocol.ParseTxID(out.TransactionID)
	if err != nil {
		return chainhash.Hash{}, protocol.AdapterError("submitTransaction", err)
	}
	return h, nil
}

// ToUTXOs converts node entries, skipping any with an unparseable txid.
func ToUTXOs(entries []UtxosByAddressesEntry) []utxo.UTXO {
	out := make([]utxo.UTXO, 0, len(entries))
	for _, e := range entries {
		txid, err := protocol.ParseTxID(e.Outpoint.TransactionID)
		if err != nil {
			continue
		}
		out = append(out, utxo.UTXO{
			Outpoint:        protocol.Outpoint{TxID: txid, Index: e.Outpoint.Index},
			Amount:          uint64(e.UtxoEntry.Amount),
			ScriptVersion:   e.UtxoEntry.ScriptPublicKey.Version,
			ScriptPublicKey: e.UtxoEntry.ScriptPublicKey.Script,
			BlockDaaScore:   uint64(e.UtxoEntry.BlockDaaScore),
			IsCoinbase:      e.UtxoEntry.IsCoinbase,
		})
	}
	return out
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connLocked(ctx)
	if err != nil {
		return protocol.AdapterError(method, err)
	}
	raw, err := c.roundTripLocked(ctx, conn, method, params)
	if err != nil {
		var re *rpcError
		if !errors.As(err, &re) {
			c.dropLocked(method, err)
		}
		return protocol.AdapterError(method, err)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return protocol.AdapterError(method, fmt.Errorf("decode result: %w", err))
	}
	return nil
}

func (c *Client) roundTripLocked(ctx context.Context, conn *websocket.Conn, method string, params any) (json.RawMessage, error) {
	c.nextID++
	id := c.nextID

	deadline := time.Now().Add(c.cfg.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	// Unblock a pending read when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
		_ = conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(request{ID: id, Method: method, Params: params}); err != nil {
		return nil, ctxOr(ctx, err)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	for {
		var resp response
		if err := conn.ReadJSON(&resp); err != nil {
			return nil, ctxOr(ctx, err)
		}
		if resp.ID == nil {
			// Subscription notification.
			continue
		}
		if *resp.ID != id {
			c.logger.Debug("rpc: discarding stale response", "id", *resp.ID, "want", id)
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Params, nil
	}
}

func (c *Client) connLocked(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	dctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	conn, _, err := c.dialer.DialContext(dctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	c.logger.Info("rpc: connected", "url", c.cfg.URL)

	if c.cfg.RequireSynced {
		raw, err := c.roundTripLocked(ctx, conn, "getServerInfo", struct{}{})
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("getServerInfo: %w", err)
		}
		var info ServerInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("getServerInfo: %w", err)
		}
		if !info.IsSynced {
			_ = conn.Close()
			return nil, fmt.Errorf("node %s is not synced", c.cfg.URL)
		}
	}
	c.conn = conn
	return conn, nil
}

func (c *Client) dropLocked(method string, cause error) {
	if c.conn == nil {
		return
	}
	c.logger.Warn("rpc: dropping connection", "method", method, "err", cause)
	_ = c.conn.Close()
	c.conn = nil
}

// ctxOr prefers the context error, including a deadline that the socket
// deadline beat by a few microseconds.
func ctxOr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return err
}

// Package explorer fetches anchor payloads from a Kaspa REST explorer.
package explorer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"kisr.dev/kisr/protocol"
)

const (
	MainnetURL = "https://api.kaspa.org"
	TestnetURL = "https://api-tn10.kaspa.org"

	maxBodyBytes = 1 << 20
)

// BaseURL returns the public explorer for network.
func BaseURL(network protocol.NetworkID) string {
	if network == protocol.Testnet {
		return TestnetURL
	}
	return MainnetURL
}

type Config struct {
	// BaseURL overrides the per-network default when set.
	BaseURL string
	Timeout time.Duration
	// RPS limits outbound requests; zero disables throttling.
	RPS      float64
	CacheLen int
	HTTP     *http.Client
	Logger   *slog.Logger
}

// Client caches payloads by txid. Payloads of accepted transactions never
// change, so entries are not expired.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	cache   *lru.Cache
	group   singleflight.Group
	logger  *slog.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CacheLen <= 0 {
		cfg.CacheLen = 256
	}
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("explorer: invalid base url %q", cfg.BaseURL)
		}
	}
	cache, err := lru.New(cfg.CacheLen)
	if err != nil {
		return nil, fmt.Errorf("explorer: cache: %w", err)
	}
	c := &Client{cfg: cfg, http: cfg.HTTP, cache: cache, logger: cfg.Logger}
	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

type txResponse struct {
	Payload *string `json:"payload"`
}

type cacheKey struct {
	network protocol.NetworkID
	txid    chainhash.Hash
}

// FetchTransactionPayload returns the payload bytes of txid. A transaction
// without a payload is KISR_ERR_PAYLOAD_INVALID; transport and HTTP failures
// are KISR_ERR_ADAPTER.
func (c *Client) FetchTransactionPayload(ctx context.Context, txid chainhash.Hash, network protocol.NetworkID) ([]byte, error) {
	key := cacheKey{network: network, txid: txid}
	if v, ok := c.cache.Get(key); ok {
		return clone(v.([]byte)), nil
	}

	ch := c.group.DoChan(network.String()+"/"+txid.String(), func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), txid, network)
	})
	select {
	case <-ctx.Done():
		return nil, protocol.AdapterError("fetch payload", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		payload := res.Val.([]byte)
		c.cache.Add(key, payload)
		return clone(payload), nil
	}
}

func (c *Client) fetch(ctx context.Context, txid chainhash.Hash, network protocol.NetworkID) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, protocol.AdapterError("fetch payload", err)
		}
	}
	base := c.cfg.BaseURL
	if base == "" {
		base = BaseURL(network)
	}
	endpoint := strings.TrimRight(base, "/") + "/transactions/" + txid.String() +
		"?inputs=false&outputs=false&resolve_previous_outpoints=no"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, protocol.AdapterError("fetch payload", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, protocol.AdapterError("fetch payload", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, protocol.AdapterError("fetch payload", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("explorer: non-200", "txid", txid.String(), "status", resp.StatusCode)
		return nil, protocol.AdapterError("fetch payload", fmt.Errorf("explorer status %d", resp.StatusCode))
	}
	var tx txResponse
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, protocol.AdapterError("fetch payload", fmt.Errorf("decode: %w", err))
	}
	if tx.Payload == nil || *tx.Payload == "" {
		return nil, protocol.NewError(protocol.KISR_ERR_PAYLOAD_INVALID, "anchor transaction has no payload")
	}
	payload, err := hex.DecodeString(*tx.Payload)
	if err != nil {
		return nil, protocol.WrapError(protocol.KISR_ERR_PAYLOAD_INVALID, "payload hex", err)
	}
	return payload, nil
}

// Purge drops every cached payload.
func (c *Client) Purge() { c.cache.Purge() }

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

package node

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"kisr.dev/kisr/node/rpc"
	"kisr.dev/kisr/protocol"
	"kisr.dev/kisr/utxo"
)

type fakeRPC struct {
	entries   []rpc.UtxosByAddressesEntry
	err       error
	submitted json.RawMessage
	addrs     []string
}

func (f *fakeRPC) GetUtxosByAddresses(_ context.Context, addresses []string) ([]rpc.UtxosByAddressesEntry, error) {
	f.addrs = addresses
	return f.entries, f.err
}

func (f *fakeRPC) SubmitTransaction(_ context.Context, tx json.RawMessage) (chainhash.Hash, error) {
	f.submitted = tx
	return chainhash.Hash{1}, f.err
}

type fakePayloads struct{ payload []byte }

func (f fakePayloads) FetchTransactionPayload(context.Context, chainhash.Hash, protocol.NetworkID) ([]byte, error) {
	return f.payload, nil
}

const clientTestTxID = "f1e2d3c4b5a697881223344556677889aabbccddeeff00112233445566778899"

func TestClient_GetUtxosByAddressConverts(t *testing.T) {
	r := &fakeRPC{entries: []rpc.UtxosByAddressesEntry{
		{Outpoint: rpc.OutpointJSON{TransactionID: clientTestTxID, Index: 1}, UtxoEntry: rpc.UtxoEntryJSON{Amount: 500}},
		{Outpoint: rpc.OutpointJSON{TransactionID: "bad", Index: 2}},
	}}
	c := &Client{RPC: r}
	us, err := c.GetUtxosByAddress(context.Background(), "kaspa:qq")
	if err != nil {
		t.Fatalf("GetUtxosByAddress: %v", err)
	}
	if len(us) != 1 || us[0].Amount != 500 || us[0].Outpoint.Index != 1 {
		t.Fatalf("unexpected utxos: %+v", us)
	}
	if len(r.addrs) != 1 || r.addrs[0] != "kaspa:qq" {
		t.Fatalf("addresses=%v", r.addrs)
	}
}

func TestClient_SubmitTransactionPassesJSON(t *testing.T) {
	r := &fakeRPC{}
	c := &Client{RPC: r}
	h, err := c.SubmitTransaction(context.Background(), []byte(`{"version":0}`))
	if err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}
	if h != (chainhash.Hash{1}) || string(r.submitted) != `{"version":0}` {
		t.Fatalf("h=%s submitted=%s", h, r.submitted)
	}
}

func TestClient_EstimateFeeUsesConfiguredRate(t *testing.T) {
	c := &Client{FeeRate: 2000}
	req := utxo.FeeRequest{Inputs: make([]utxo.UTXO, 1)}
	fee, err := c.EstimateFee(context.Background(), req)
	if err != nil {
		t.Fatalf("EstimateFee: %v", err)
	}
	if fee != 3248 {
		t.Fatalf("fee=%d want 3248", fee)
	}
	req.FeeRate = 1000
	fee, _ = c.EstimateFee(context.Background(), req)
	if fee != 1624 {
		t.Fatalf("fee=%d want 1624", fee)
	}
}

func TestClient_MissingBackendsAreAdapterErrors(t *testing.T) {
	c := &Client{}
	if _, err := c.GetUtxosByAddress(context.Background(), "kaspa:qq"); !protocol.HasCode(err, protocol.KISR_ERR_ADAPTER) {
		t.Fatalf("err=%v", err)
	}
	if _, err := c.SubmitTransaction(context.Background(), nil); !protocol.HasCode(err, protocol.KISR_ERR_ADAPTER) {
		t.Fatalf("err=%v", err)
	}
	if _, err := c.FetchTransactionPayload(context.Background(), chainhash.Hash{}, protocol.Mainnet); !protocol.HasCode(err, protocol.KISR_ERR_ADAPTER) {
		t.Fatalf("err=%v", err)
	}
	c.Payloads = fakePayloads{payload: []byte{1}}
	if p, err := c.FetchTransactionPayload(context.Background(), chainhash.Hash{}, protocol.Mainnet); err != nil || len(p) != 1 {
		t.Fatalf("payload=%x err=%v", p, err)
	}
}

func TestClient_RPCErrorPropagates(t *testing.T) {
	want := protocol.AdapterError("getUtxosByAddresses", errors.New("boom"))
	c := &Client{RPC: &fakeRPC{err: want}}
	if _, err := c.GetUtxosByAddress(context.Background(), "kaspa:qq"); !errors.Is(err, want) {
		t.Fatalf("err=%v", err)
	}
}

func TestNewClientBuildsBackends(t *testing.T) {
	cfg := DefaultConfig()
	c, closeFn, err := NewClient(cfg, protocol.Mainnet, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer func() { _ = closeFn() }()
	if c.RPC == nil || c.Payloads == nil || c.FeeRate != cfg.FeeRate {
		t.Fatalf("client not wired: %+v", c)
	}
}

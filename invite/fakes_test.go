package invite

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"kisr.dev/kisr/crypto"
	"kisr.dev/kisr/protocol"
	"kisr.dev/kisr/utxo"
)

const (
	inviterAddr  = "kaspatest:qqinviter"
	redeemerAddr = "kaspatest:qqredeemer"
)

type cheapKDF struct {
	crypto.StdCryptoProvider
}

func (p cheapKDF) Argon2id(password, salt []byte, _ uint32, _ uint64, keyLen uint32) ([]byte, error) {
	return p.StdCryptoProvider.Argon2id(password, salt, 1, 64*1024, keyLen)
}

// fakeLedger is an in-memory node: anchor payloads by txid and UTXO sets by
// address. Entries for an address become visible after hideFor lookups.
type fakeLedger struct {
	mu       sync.Mutex
	payloads map[chainhash.Hash][]byte
	utxos    map[string][]utxo.UTXO
	hideFor  int
	getCalls int
	getErr   error
	fetchErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		payloads: make(map[chainhash.Hash][]byte),
		utxos:    make(map[string][]utxo.UTXO),
	}
}

func (l *fakeLedger) FetchTransactionPayload(_ context.Context, txid chainhash.Hash, _ protocol.NetworkID) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fetchErr != nil {
		return nil, l.fetchErr
	}
	p, ok := l.payloads[txid]
	if !ok {
		return nil, errors.New("transaction not found")
	}
	return append([]byte(nil), p...), nil
}

func (l *fakeLedger) GetUtxosByAddress(_ context.Context, address string) ([]utxo.UTXO, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.getCalls++
	if l.getErr != nil {
		return nil, l.getErr
	}
	if l.getCalls <= l.hideFor {
		return nil, nil
	}
	return append([]utxo.UTXO(nil), l.utxos[address]...), nil
}

func (l *fakeLedger) SubmitTransaction(_ context.Context, raw []byte) (chainhash.Hash, error) {
	return chainhash.HashH(raw), nil
}

func (l *fakeLedger) EstimateFee(ctx context.Context, req utxo.FeeRequest) (uint64, error) {
	return utxo.MassEstimator{}.EstimateFee(ctx, req)
}

func (l *fakeLedger) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getCalls
}

type fakeWallet struct {
	mu      sync.Mutex
	network protocol.NetworkID
	ledger  *fakeLedger
	holder  string
	seq     byte

	fundCalls    int
	presignCalls int
	anchorCalls  int
	anchorErrs   []error

	lastAnchor     AnchorRequest
	lastRedemption RedemptionRequest
}

func (w *fakeWallet) CurrentNetworkID(context.Context) (protocol.NetworkID, error) {
	return w.network, nil
}

func (w *fakeWallet) nextTxID() chainhash.Hash {
	w.seq++
	var h chainhash.Hash
	h[0] = w.seq
	h[31] = 0xcc
	return h
}

func (w *fakeWallet) CreateSelfUTXO(_ context.Context, amount uint64) (FundedOutput, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fundCalls++
	out := FundedOutput{Outpoint: protocol.Outpoint{TxID: w.nextTxID(), Index: 0}, Amount: amount}
	w.ledger.mu.Lock()
	w.ledger.utxos[w.holder] = append(w.ledger.utxos[w.holder], utxo.UTXO{Outpoint: out.Outpoint, Amount: amount})
	w.ledger.mu.Unlock()
	return out, nil
}

func (w *fakeWallet) PreSignInput(_ context.Context, _ FundedOutput, sighash protocol.SighashType) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.presignCalls++
	sig := make([]byte, 65)
	for i := range sig {
		sig[i] = 0x5a
	}
	sig[64] = byte(sighash)
	return sig, nil
}

func (w *fakeWallet) PublishAnchorTransaction(_ context.Context, req AnchorRequest) (chainhash.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.anchorCalls++
	if len(w.anchorErrs) > 0 {
		err := w.anchorErrs[0]
		w.anchorErrs = w.anchorErrs[1:]
		return chainhash.Hash{}, err
	}
	w.lastAnchor = req
	txid := w.nextTxID()
	w.ledger.mu.Lock()
	w.ledger.payloads[txid] = append([]byte(nil), req.Payload...)
	w.ledger.mu.Unlock()
	return txid, nil
}

func (w *fakeWallet) AssembleRedemption(_ context.Context, req RedemptionRequest) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastRedemption = req
	return json.Marshal(map[string]any{
		"input":  req.Input.Outpoint.String(),
		"to":     req.ToAddress,
		"amount": req.Input.Amount - req.Fee,
	})
}

func (w *fakeWallet) BroadcastRedemption(ctx context.Context, raw []byte) (chainhash.Hash, error) {
	return w.ledger.SubmitTransaction(ctx, raw)
}

type memStore struct {
	mu          sync.Mutex
	states      []CreateState
	last        *CreateProgress
	redemptions []*RedemptionReceipt
	// failOn makes SaveInvite fail for that state without recording it.
	failOn *CreateState
}

func (m *memStore) SaveInvite(p *CreateProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil && *m.failOn == p.State {
		return errors.New("disk full")
	}
	cp := *p
	m.states = append(m.states, p.State)
	m.last = &cp
	return nil
}

func (m *memStore) SaveRedemption(r *RedemptionReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redemptions = append(m.redemptions, r)
	return nil
}

type harness struct {
	ledger *fakeLedger
	wallet *fakeWallet
	store  *memStore
	svc    *Service
	events []StateEvent
}

func newHarness(network protocol.NetworkID) *harness {
	h := &harness{ledger: newFakeLedger(), store: &memStore{}}
	h.wallet = &fakeWallet{network: network, ledger: h.ledger, holder: inviterAddr}
	codec, err := protocol.NewEnvelopeCodec(cheapKDF{}, protocol.WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }))
	if err != nil {
		panic(err)
	}
	svc, err := NewService(Config{
		Wallet:  h.wallet,
		Node:    h.ledger,
		Codec:   codec,
		Store:   h.store,
		Poll:    PollConfig{Attempts: 3, Interval: time.Millisecond},
		OnState: func(e StateEvent) { h.events = append(h.events, e) },
	})
	if err != nil {
		panic(err)
	}
	h.svc = svc
	return h
}

func (h *harness) states(flow string) []string {
	var out []string
	for _, e := range h.events {
		if e.Flow == flow {
			out = append(out, e.State)
		}
	}
	return out
}

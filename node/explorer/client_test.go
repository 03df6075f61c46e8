package explorer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kisr.dev/kisr/protocol"
)

const testTxID = "f1e2d3c4b5a697881223344556677889aabbccddeeff00112233445566778899"

func mustTxID(t *testing.T) chainhash.Hash {
	t.Helper()
	h, err := protocol.ParseTxID(testTxID)
	require.NoError(t, err)
	return h
}

func newServer(t *testing.T, hits *int32, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "/transactions/"+testTxID, r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("inputs"))
		assert.Equal(t, "false", r.URL.Query().Get("outputs"))
		assert.Equal(t, "no", r.URL.Query().Get("resolve_previous_outpoints"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchTransactionPayloadDecodesAndCaches(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits, http.StatusOK, `{"transaction_id":"x","payload":"4b4953522d01"}`)
	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	txid := mustTxID(t)
	got, err := c.FetchTransactionPayload(context.Background(), txid, protocol.Testnet)
	require.NoError(t, err)
	assert.Equal(t, []byte("KISR-\x01"), got)

	got[0] = 'X'
	again, err := c.FetchTransactionPayload(context.Background(), txid, protocol.Testnet)
	require.NoError(t, err)
	assert.Equal(t, []byte("KISR-\x01"), again, "cached value must not alias caller slices")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	c.Purge()
	_, err = c.FetchTransactionPayload(context.Background(), txid, protocol.Testnet)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchTransactionPayloadMissingPayload(t *testing.T) {
	for _, body := range []string{`{}`, `{"payload":""}`, `{"payload":null}`} {
		var hits int32
		srv := newServer(t, &hits, http.StatusOK, body)
		c, err := New(Config{BaseURL: srv.URL})
		require.NoError(t, err)
		_, err = c.FetchTransactionPayload(context.Background(), mustTxID(t), protocol.Mainnet)
		require.Error(t, err, body)
		assert.True(t, protocol.HasCode(err, protocol.KISR_ERR_PAYLOAD_INVALID), body)
	}
}

func TestFetchTransactionPayloadBadHex(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits, http.StatusOK, `{"payload":"zz"}`)
	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.FetchTransactionPayload(context.Background(), mustTxID(t), protocol.Mainnet)
	assert.True(t, protocol.HasCode(err, protocol.KISR_ERR_PAYLOAD_INVALID))
}

func TestFetchTransactionPayloadHTTPErrorIsAdapter(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits, http.StatusNotFound, `{"detail":"not found"}`)
	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.FetchTransactionPayload(context.Background(), mustTxID(t), protocol.Mainnet)
	require.Error(t, err)
	assert.True(t, protocol.HasCode(err, protocol.KISR_ERR_ADAPTER))

	// Failures are not cached.
	_, _ = c.FetchTransactionPayload(context.Background(), mustTxID(t), protocol.Mainnet)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchTransactionPayloadCoalescesConcurrentCalls(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		_, _ = w.Write([]byte(`{"payload":"01"}`))
	}))
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	txid := mustTxID(t)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.FetchTransactionPayload(context.Background(), txid, protocol.Mainnet)
			errs <- err
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchTransactionPayloadContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.FetchTransactionPayload(ctx, mustTxID(t), protocol.Mainnet)
	require.Error(t, err)
	assert.True(t, protocol.HasCode(err, protocol.KISR_ERR_ADAPTER))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "ftp://example"})
	require.Error(t, err)
	_, err = New(Config{BaseURL: "http://"})
	require.Error(t, err)
}

func TestBaseURLPerNetwork(t *testing.T) {
	assert.Equal(t, MainnetURL, BaseURL(protocol.Mainnet))
	assert.Equal(t, TestnetURL, BaseURL(protocol.Testnet))
}

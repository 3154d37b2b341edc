package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/airchainpay/relay/internal/auth"
	"github.com/airchainpay/relay/internal/breaker"
	"github.com/airchainpay/relay/internal/metrics"
	"github.com/airchainpay/relay/internal/models"
	"github.com/airchainpay/relay/internal/registry"
	"github.com/airchainpay/relay/internal/rpcpool"
	"github.com/airchainpay/relay/internal/store"
)

func newTestDeps(t *testing.T) (*Deps, *auth.Issuer) {
	t.Helper()

	reg, err := registry.New()
	require.NoError(t, err)

	st, err := store.New(filepath.Join(t.TempDir(), "transactions.json"), 0)
	require.NoError(t, err)

	issuer, err := auth.NewIssuer("test-secret-value", time.Minute)
	require.NoError(t, err)

	guard := breaker.NewGuard(3, 1, time.Millisecond, nil)
	rec := metrics.New(nil, models.Metrics{})

	return &Deps{
		Registry: reg,
		Pool:     rpcpool.New(),
		Store:    st,
		Auth:     issuer,
		Guard:    guard,
		Metrics:  rec,
	}, issuer
}

func TestHealthReportsOKWhenStoreIsWritable(t *testing.T) {
	deps, _ := newTestDeps(t)
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSendTxRejectsMissingAuth(t *testing.T) {
	deps, _ := newTestDeps(t)
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodPost, "/api/send_tx", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

// fakeChainRPC is a JSON-RPC node stub that records how many broadcasts it
// received and either accepts them with a fixed hash or refuses the
// connection-level contract by returning a 500.
type fakeChainRPC struct {
	mu         sync.Mutex
	broadcasts int
	fail       bool
}

func (f *fakeChainRPC) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.broadcasts++
		fail := f.fail
		f.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req struct {
			ID     int64  `json:"id"`
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0x1111111111111111111111111111111111111111111111111111111111111111",
		})
	}
}

func (f *fakeChainRPC) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.broadcasts
}

// wireChain points chain 1114 at the fake node for both the registry and the
// RPC pool.
func wireChain(t *testing.T, deps *Deps, url string) {
	t.Helper()
	cfg := models.ChainConfig{
		ChainID:         1114,
		Name:            "Core Testnet",
		RPCURL:          url,
		ContractAddress: "0x8d7eaB03a72974F5D9F5c99B4e4e1B393DBcfCAB",
		NativeCurrency:  models.NativeCurrency{Name: "Core", Symbol: "tCORE", Decimals: 18},
	}
	require.NoError(t, deps.Registry.Register(cfg))
	require.NoError(t, deps.Pool.Add(cfg))
}

func authedSendTx(t *testing.T, router http.Handler, token, signedTx string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"signed_tx": signedTx,
		"chain_id":  1114,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/send_tx", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSendTxAcceptsAndStoresRawTransaction(t *testing.T) {
	deps, issuer := newTestDeps(t)
	node := &fakeChainRPC{}
	srv := httptest.NewServer(node.handler())
	defer srv.Close()
	wireChain(t, deps, srv.URL)
	router := NewRouter(deps)

	token, err := issuer.Issue("test_device", "device")
	require.NoError(t, err)

	rec := authedSendTx(t, router, token, "0xf86b0185012a05f200825208941234567890123456789012345678901234567890880de0b6b3a76400008025a0aa"+strings.Repeat("0", 62)+"a0bb"+strings.Repeat("0", 62))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success       bool   `json:"success"`
		TransactionID string `json:"transaction_id"`
		ChainID       uint64 `json:"chain_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NoError(t, uuid.Validate(resp.TransactionID))
	require.Equal(t, uint64(1114), resp.ChainID)

	stored, err := deps.Store.Get(resp.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, models.TxStatusConfirmed, stored.Status)
	require.Equal(t, 1, deps.Store.Len())
}

func TestSendTxReplayShortCircuitsToExistingRecord(t *testing.T) {
	deps, issuer := newTestDeps(t)
	node := &fakeChainRPC{}
	srv := httptest.NewServer(node.handler())
	defer srv.Close()
	wireChain(t, deps, srv.URL)
	router := NewRouter(deps)

	token, err := issuer.Issue("test_device", "device")
	require.NoError(t, err)

	signedTx := "0xf86b01850918ae2c00825208"
	first := authedSendTx(t, router, token, signedTx)
	require.Equal(t, http.StatusOK, first.Code)
	second := authedSendTx(t, router, token, signedTx)
	require.Equal(t, http.StatusOK, second.Code)

	var firstResp, secondResp struct {
		TransactionID string `json:"transaction_id"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))

	require.Equal(t, firstResp.TransactionID, secondResp.TransactionID)
	require.Equal(t, 1, node.count())
	require.Equal(t, 1, deps.Store.Len())
}

func TestSendTxBreakerTripsAfterConsecutiveNetworkFailures(t *testing.T) {
	deps, issuer := newTestDeps(t)
	deps.Guard = breaker.NewGuard(3, 1, time.Minute, nil)
	deps.BroadcastAttempts = 1
	node := &fakeChainRPC{fail: true}
	srv := httptest.NewServer(node.handler())
	defer srv.Close()
	wireChain(t, deps, srv.URL)
	router := NewRouter(deps)

	token, err := issuer.Issue("test_device", "device")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rec := authedSendTx(t, router, token, fmt.Sprintf("0xf86b0%d", i))
		require.Equal(t, http.StatusBadGateway, rec.Code)
	}

	before := node.count()
	rec := authedSendTx(t, router, token, "0xf86b09")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, before, node.count())

	var resp struct {
		RetryAfter int `json:"retry_after"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 300, resp.RetryAfter)
}

func TestGetTxReturnsNotFoundForUnknownID(t *testing.T) {
	deps, issuer := newTestDeps(t)
	router := NewRouter(deps)

	token, err := issuer.Issue("operator-1", "operator", "send_tx")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/tx/does-not-exist", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

package reconciler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/airchainpay/relay/internal/models"
	"github.com/airchainpay/relay/internal/rpcpool"
	"github.com/airchainpay/relay/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transactions.json")
	s, err := store.New(path, 1000)
	require.NoError(t, err)
	return s
}

func TestReconcileOnceSkipsRecordsWithoutTxHash(t *testing.T) {
	s := newTestStore(t)
	rec := &models.StoredTransaction{
		ID:        uuid.NewString(),
		ChainID:   1114,
		Timestamp: time.Now().UTC(),
		Status:    models.TxStatusPending,
	}
	require.NoError(t, s.Put(rec))

	rc := New(s, rpcpool.New(), nil, nil)
	settled, err := rc.ReconcileOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, settled)

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	require.Equal(t, models.TxStatusPending, got.Status)
}

// receiptNode answers eth_getTransactionReceipt with the given status.
func receiptNode(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID int64 `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]string{
				"transactionHash": "0xabc",
				"blockNumber":     "0x10",
				"status":          status,
			},
		})
	}
}

func TestReconcileOnceSettlesFromReceipt(t *testing.T) {
	for _, tc := range []struct {
		name       string
		nodeStatus string
		want       models.TxStatus
	}{
		{"mined receipt confirms", "0x1", models.TxStatusConfirmed},
		{"reverted receipt fails", "0x0", models.TxStatusFailed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(receiptNode(tc.nodeStatus))
			defer srv.Close()

			s := newTestStore(t)
			rec := &models.StoredTransaction{
				ID:        uuid.NewString(),
				ChainID:   1114,
				TxHash:    "0xabc",
				Timestamp: time.Now().UTC(),
				Status:    models.TxStatusPending,
			}
			require.NoError(t, s.Put(rec))

			pool := rpcpool.New()
			require.NoError(t, pool.Add(models.ChainConfig{ChainID: 1114, RPCURL: srv.URL}))

			rc := New(s, pool, nil, nil)
			settled, err := rc.ReconcileOnce(context.Background())
			require.NoError(t, err)
			require.Equal(t, 1, settled)

			got, err := s.Get(rec.ID)
			require.NoError(t, err)
			require.Equal(t, tc.want, got.Status)
		})
	}
}

func TestReconcileOnceDropsStaleNeverBroadcastRecords(t *testing.T) {
	s := newTestStore(t)
	rec := &models.StoredTransaction{
		ID:        uuid.NewString(),
		ChainID:   1114,
		Timestamp: time.Now().UTC().Add(-2 * time.Hour),
		Status:    models.TxStatusPending,
	}
	require.NoError(t, s.Put(rec))

	rc := New(s, rpcpool.New(), nil, nil)
	settled, err := rc.ReconcileOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, settled)

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	require.Equal(t, models.TxStatusDropped, got.Status)
}

func TestReconcileOnceLeavesUnroutableChainPending(t *testing.T) {
	s := newTestStore(t)
	rec := &models.StoredTransaction{
		ID:        uuid.NewString(),
		ChainID:   999999,
		TxHash:    "0xabc",
		Timestamp: time.Now().UTC(),
		Status:    models.TxStatusPending,
	}
	require.NoError(t, s.Put(rec))

	rc := New(s, rpcpool.New(), nil, nil)
	settled, err := rc.ReconcileOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, settled)
}

package metrics

import (
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/airchainpay/relay/internal/models"
)

func TestRecorderCountersOnlyIncrease(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, models.Metrics{})

	r.RecordReceived()
	r.RecordReceived()
	r.RecordProcessed(10)
	r.RecordFailed(20)
	r.RecordAuthFailure()

	snap := r.Snapshot()
	require.Equal(t, uint64(2), snap.Received)
	require.Equal(t, uint64(1), snap.Processed)
	require.Equal(t, uint64(1), snap.Failed)
	require.Equal(t, uint64(1), snap.AuthFailures)
	require.InDelta(t, 15.0, snap.ResponseTimeMsAvg, 0.001)
}

func TestRecorderRehydratesFromSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, models.Metrics{Received: 100, Processed: 90, Failed: 10, AuthFailures: 3})

	r.RecordReceived()
	snap := r.Snapshot()
	require.Equal(t, uint64(101), snap.Received)
	require.Equal(t, uint64(90), snap.Processed)
}

func TestSaveAndLoadSnapshotRoundTrips(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, models.Metrics{})
	r.RecordReceived()
	r.RecordProcessed(5)

	path := filepath.Join(t.TempDir(), "metrics.json")
	require.NoError(t, SaveSnapshot(path, r))

	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1), loaded.Received)
	require.Equal(t, uint64(1), loaded.Processed)
}

func TestLoadSnapshotMissingFileIsNotError(t *testing.T) {
	loaded, err := LoadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Equal(t, models.Metrics{}, loaded)
}

package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/airchainpay/relay/internal/models"
)

type recordingSink struct {
	entries []models.ErrorRecord
}

func (s *recordingSink) LogOperation(entry models.ErrorRecord) error {
	s.entries = append(s.entries, entry)
	return nil
}

func TestGuardAllowsUntilThresholdThenOpens(t *testing.T) {
	sink := &recordingSink{}
	g := NewGuard(3, 2, 50*time.Millisecond, sink)

	for i := 0; i < 2; i++ {
		require.NoError(t, g.Allow(models.PathTransactionProcessing))
		g.RecordFailure(models.PathTransactionProcessing, errors.New("rpc timeout"))
	}
	require.Equal(t, StateClosed, g.StateOf(models.PathTransactionProcessing))

	require.NoError(t, g.Allow(models.PathTransactionProcessing))
	g.RecordFailure(models.PathTransactionProcessing, errors.New("rpc timeout"))
	require.Equal(t, StateOpen, g.StateOf(models.PathTransactionProcessing))

	err := g.Allow(models.PathTransactionProcessing)
	require.Error(t, err)
	require.NotEmpty(t, sink.entries)
}

func TestGuardHalfOpensAfterCooldownAndCloses(t *testing.T) {
	sink := &recordingSink{}
	g := NewGuard(1, 1, 10*time.Millisecond, sink)

	require.NoError(t, g.Allow(models.PathBlockchainTransaction))
	g.RecordFailure(models.PathBlockchainTransaction, errors.New("boom"))
	require.Equal(t, StateOpen, g.StateOf(models.PathBlockchainTransaction))

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, g.Allow(models.PathBlockchainTransaction))
	require.Equal(t, StateHalfOpen, g.StateOf(models.PathBlockchainTransaction))

	g.RecordSuccess(models.PathBlockchainTransaction)
	require.Equal(t, StateClosed, g.StateOf(models.PathBlockchainTransaction))
}

func TestGuardHalfOpenFailureDoublesCooldown(t *testing.T) {
	sink := &recordingSink{}
	g := NewGuard(1, 1, 10*time.Millisecond, sink)

	require.NoError(t, g.Allow(models.PathBLEDeviceConnection))
	g.RecordFailure(models.PathBLEDeviceConnection, errors.New("first failure"))
	require.Equal(t, StateOpen, g.StateOf(models.PathBLEDeviceConnection))

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, g.Allow(models.PathBLEDeviceConnection))
	require.Equal(t, StateHalfOpen, g.StateOf(models.PathBLEDeviceConnection))

	// The half-open probe fails: the circuit re-opens and its cooldown
	// doubles, so a probe attempted after only the original cooldown is
	// still rejected.
	g.RecordFailure(models.PathBLEDeviceConnection, errors.New("probe failed"))
	require.Equal(t, StateOpen, g.StateOf(models.PathBLEDeviceConnection))

	time.Sleep(15 * time.Millisecond)
	require.Error(t, g.Allow(models.PathBLEDeviceConnection))
	require.Equal(t, StateOpen, g.StateOf(models.PathBLEDeviceConnection))

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, g.Allow(models.PathBLEDeviceConnection))
	require.Equal(t, StateHalfOpen, g.StateOf(models.PathBLEDeviceConnection))
}

func TestGuardIndependentPaths(t *testing.T) {
	g := NewGuard(1, 1, time.Minute, nil)

	g.RecordFailure(models.PathTransactionProcessing, errors.New("x"))
	require.Equal(t, StateOpen, g.StateOf(models.PathTransactionProcessing))
	require.Equal(t, StateClosed, g.StateOf(models.PathGeneralAPI))
}

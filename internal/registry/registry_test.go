package registry

import (
	"testing"

	"github.com/airchainpay/relay/internal/models"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryLoadsBuiltins(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	c, ok := r.Get(1114)
	require.True(t, ok)
	require.Equal(t, "Core Testnet", c.Name)
	require.Equal(t, "tCORE", c.NativeCurrency.Symbol)
	require.Equal(t, "0x8d7eaB03a72974F5D9F5c99B4e4e1B393DBcfCAB", c.ContractAddress)

	_, ok = r.Get(84532)
	require.True(t, ok)
	_, ok = r.Get(4202)
	require.True(t, ok)
	_, ok = r.Get(17000)
	require.True(t, ok)
}

func TestRegisterRejectsBadConfig(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	err = r.Register(models.ChainConfig{
		ChainID:        0,
		Name:           "bad",
		NativeCurrency: models.NativeCurrency{Symbol: "not a ticker"},
		RPCURL:         "not-a-url",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "chain_id must be non-zero")
	require.Contains(t, err.Error(), "native_currency.symbol must be a short ticker")
	require.Contains(t, err.Error(), "rpc_url must be a parseable http")
	require.Contains(t, err.Error(), "contract_address")
}

func TestAllSortedByChainID(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	all := r.All()
	for i := 1; i < len(all); i++ {
		require.LessOrEqual(t, all[i-1].ChainID, all[i].ChainID)
	}
}

func TestDefaultChainIDFallsBackToCoreTestnet(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	require.Equal(t, uint64(1114), r.DefaultChainID())
}

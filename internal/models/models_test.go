package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathForEndpointPrefixTable(t *testing.T) {
	cases := map[string]CriticalPath{
		"/api/send_tx":      PathTransactionProcessing,
		"/api/send_meta_tx": PathTransactionProcessing,
		"/api/tx/abc":       PathTransactionProcessing,
		"/transaction":      PathTransactionProcessing,
		"/ble/pair":         PathBLEDeviceConnection,
		"/auth/token":       PathAuthentication,
		"/health":           PathHealthCheck,
		"/metrics":          PathMonitoringMetrics,
		"/config/reload":    PathConfigurationReload,
		"/backup":           PathBackupOperation,
		"/security/scan":    PathSecurityValidation,
		"/database/vacuum":  PathDatabaseOperation,
		"/anything-else":    PathGeneralAPI,
		"/":                 PathGeneralAPI,
	}
	for endpoint, want := range cases {
		require.Equal(t, want, PathForEndpoint(endpoint), "endpoint %q", endpoint)
	}
}

func TestChainConfigValidateAccumulatesProblems(t *testing.T) {
	bad := ChainConfig{
		ChainID:        0,
		Name:           "",
		RPCURL:         "ftp://nope",
		NativeCurrency: NativeCurrency{Symbol: ""},
	}
	err := bad.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "chain_id")
	require.Contains(t, err.Error(), "name")
	require.Contains(t, err.Error(), "rpc_url")
	require.Contains(t, err.Error(), "symbol")
	require.Contains(t, err.Error(), "contract_address")
}

func TestChainConfigValidateRejectsHostlessRPCURL(t *testing.T) {
	cfg := ChainConfig{
		ChainID:         1,
		Name:            "x",
		RPCURL:          "http://",
		ContractAddress: "0x7B79117445C57eea1CEAb4733020A55e1D503934",
		NativeCurrency:  NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
	}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "rpc_url")
}

func TestChainConfigValidateAcceptsWellFormedEntry(t *testing.T) {
	good := ChainConfig{
		ChainID:          84532,
		Name:             "Base Sepolia",
		RPCURL:           "https://sepolia.base.org",
		ContractAddress:  "0x7B79117445C57eea1CEAb4733020A55e1D503934",
		NativeCurrency:   NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		BlockTimeSeconds: 2,
	}
	require.NoError(t, good.Validate())
}

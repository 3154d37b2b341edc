// Package registry is the Chain Registry: the fixed table of EVM-family
// chains the relay will accept transactions for, loaded at startup and
// validated fail-fast before the process is allowed to serve traffic.
package registry

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/airchainpay/relay/internal/models"
)

// Registry is a read-mostly, concurrency-safe table of ChainConfig entries
// keyed by chain ID.
type Registry struct {
	mu     sync.RWMutex
	chains map[uint64]models.ChainConfig
}

// builtins are the four chains shipped by default.
// Operators override or extend them with WALLET_CORE_RPC_<KEY> environment
// variables, where <KEY> is the third column below.
func builtins() []struct {
	cfg models.ChainConfig
	key string
} {
	return []struct {
		cfg models.ChainConfig
		key string
	}{
		{
			cfg: models.ChainConfig{
				ChainID:            1114,
				Name:               "Core Testnet",
				RPCURL:             "https://rpc.test2.btcs.network",
				ContractAddress:    "0x8d7eaB03a72974F5D9F5c99B4e4e1B393DBcfCAB",
				NativeCurrency:     models.NativeCurrency{Name: "Core", Symbol: "tCORE", Decimals: 18},
				BlockTimeSeconds:   3,
				BlockConfirmations: 3,
				IsTestnet:          true,
			},
			key: "CORE_TESTNET",
		},
		{
			cfg: models.ChainConfig{
				ChainID:            84532,
				Name:               "Base Sepolia",
				RPCURL:             "https://sepolia.base.org",
				ContractAddress:    "0x7B79117445C57eea1CEAb4733020A55e1D503934",
				NativeCurrency:     models.NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
				BlockTimeSeconds:   2,
				BlockConfirmations: 3,
				IsTestnet:          true,
			},
			key: "BASE_SEPOLIA",
		},
		{
			cfg: models.ChainConfig{
				ChainID:            4202,
				Name:               "Lisk Sepolia",
				RPCURL:             "https://rpc.sepolia-api.lisk.com",
				ContractAddress:    "0xaBEEEc6e6c1f6bfDE1d05db74B28847Ba5b44EAF",
				NativeCurrency:     models.NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
				BlockTimeSeconds:   2,
				BlockConfirmations: 3,
				IsTestnet:          true,
			},
			key: "LISK_SEPOLIA",
		},
		{
			cfg: models.ChainConfig{
				ChainID:            17000,
				Name:               "Ethereum Holesky",
				RPCURL:             "https://ethereum-holesky-rpc.publicnode.com",
				ContractAddress:    "0x26C59cd738Df90604Ebb13Ed8DB76657cfD51f40",
				NativeCurrency:     models.NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
				BlockTimeSeconds:   12,
				BlockConfirmations: 2,
				IsTestnet:          true,
			},
			key: "HOLESKY",
		},
	}
}

// New builds a Registry from the built-in chain table, applying any
// WALLET_CORE_RPC_<KEY> overrides found in the environment, and fails
// fast — returning every validation problem across every chain, not just the
// first — if any entry is malformed. Partial startup is forbidden: a single
// bad entry fails the whole registry.
func New() (*Registry, error) {
	r := &Registry{chains: make(map[uint64]models.ChainConfig)}

	var problems []string
	for _, b := range builtins() {
		c := b.cfg
		if override := os.Getenv("WALLET_CORE_RPC_" + b.key); override != "" {
			c.RPCURL = override
		}
		if err := c.Validate(); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		r.chains[c.ChainID] = c
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("chain registry failed validation:\n%s", strings.Join(problems, "\n"))
	}
	return r, nil
}

// DefaultChainID resolves WALLET_CORE_DEFAULT_NETWORK (a chain name, case
// insensitive, matched against the registry's built-in Name field) to a
// chain ID, falling back to Core Testnet if unset or unrecognized.
func (r *Registry) DefaultChainID() uint64 {
	const fallback = 1114
	name := strings.TrimSpace(os.Getenv("WALLET_CORE_DEFAULT_NETWORK"))
	if name == "" {
		return fallback
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.chains {
		if strings.EqualFold(c.Name, name) {
			return c.ChainID
		}
	}
	return fallback
}

// Get returns the configuration for a chain ID, or false if it isn't
// registered.
func (r *Registry) Get(chainID uint64) (models.ChainConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chains[chainID]
	return c, ok
}

// All returns every registered chain, sorted by chain ID for stable output.
func (r *Registry) All() []models.ChainConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ChainConfig, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// Register adds or replaces a chain at runtime (used by --gen-secrets and by
// tests); it validates the entry before accepting it.
func (r *Registry) Register(c models.ChainConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[c.ChainID] = c
	return nil
}

// ParseChainID parses a chain ID string the way HTTP handlers need to —
// strict base-10, no sign, no whitespace tolerance.
func ParseChainID(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 10, 64)
}

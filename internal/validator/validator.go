// Package validator holds the relay's pure, no-I/O validation rules for
// addresses, hashes, amounts, and chain IDs, one function per rule.
package validator

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/airchainpay/relay/internal/registry"
	"github.com/airchainpay/relay/internal/relayerr"
)

// Address validates a 0x-prefixed, 20-byte hex Ethereum address. It does not
// require EIP-55 checksum casing, but if the address is mixed-case it MUST
// match the checksum — a mixed-case address with a bad checksum is rejected
// rather than silently accepted.
func Address(addr string) error {
	if isPlaceholder(addr) {
		return relayerr.Validation("ERR_INVALID_ADDRESS", "address looks like an unfilled placeholder", nil)
	}
	if !common.IsHexAddress(addr) {
		return relayerr.Validation("ERR_INVALID_ADDRESS", "not a well-formed 0x-prefixed 20-byte address", nil)
	}
	if hasMixedCase(addr[2:]) && common.HexToAddress(addr).Hex() != addr {
		return relayerr.Validation("ERR_INVALID_ADDRESS", "address fails EIP-55 checksum", nil)
	}
	return nil
}

// placeholderPrefixes are the unfilled-template markers operators sometimes
// leave in config by mistake ("your_contract_address_here", "YOUR_API_KEY",
// ...). Any address starting with one of these, case-insensitively, is
// rejected rather than treated as a malformed hex string.
var placeholderPrefixes = []string{"your_", "xxx", "todo", "changeme", "replace_me", "<", "0xyour"}

func isPlaceholder(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, p := range placeholderPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func hasMixedCase(hex string) bool {
	hasUpper, hasLower := false, false
	for _, r := range hex {
		switch {
		case r >= 'a' && r <= 'f':
			hasLower = true
		case r >= 'A' && r <= 'F':
			hasUpper = true
		}
	}
	return hasUpper && hasLower
}

// TxHash validates a 0x-prefixed, 32-byte hex transaction hash.
func TxHash(hash string) error {
	if !strings.HasPrefix(hash, "0x") || len(hash) != 66 {
		return relayerr.Validation("ERR_INVALID_TX_HASH", "not a well-formed 0x-prefixed 32-byte hash", nil)
	}
	for _, r := range hash[2:] {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return relayerr.Validation("ERR_INVALID_TX_HASH", "hash contains non-hex characters", nil)
		}
	}
	return nil
}

// Amount validates that a transfer amount is non-nil and positive. A zero
// amount is rejected: the relay moves value, it doesn't carry pure data
// calls.
func Amount(amount *big.Int) error {
	if amount == nil {
		return relayerr.Validation("ERR_INVALID_AMOUNT", "amount must be provided", nil)
	}
	if amount.Sign() <= 0 {
		return relayerr.Validation("ERR_INVALID_AMOUNT", "amount must be positive", nil)
	}
	return nil
}

// maxUint256Bits bounds a wei value string so it fits in the EVM's 256-bit
// word size.
const maxUint256Bits = 256

// ValueWei validates and parses a wire-format wei amount: a non-empty,
// base-10, non-negative integer string that fits in a uint256.
func ValueWei(value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, relayerr.Validation("ERR_INVALID_AMOUNT", "value must not be empty", nil)
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, relayerr.Validation("ERR_INVALID_AMOUNT", "value is not a base-10 integer", nil)
	}
	if amount.Sign() < 0 {
		return nil, relayerr.Validation("ERR_INVALID_AMOUNT", "value must not be negative", nil)
	}
	if amount.BitLen() > maxUint256Bits {
		return nil, relayerr.Validation("ERR_INVALID_AMOUNT", "value exceeds uint256 range", nil)
	}
	return amount, nil
}

// ReplayNonce enforces the meta-transaction replay-safety invariant: the
// nonce presented by the caller must equal the nonce the relay fetched from
// the chain for that (from) address at admission time.
func ReplayNonce(presented, onChain uint64) error {
	if presented != onChain {
		return relayerr.Validation("ERR_NONCE_MISMATCH",
			"meta-transaction nonce does not match the on-chain nonce", nil)
	}
	return nil
}

// Deadline enforces that a meta-transaction's deadline (unix seconds) has
// not yet passed as of now (also unix seconds).
func Deadline(deadline, now int64) error {
	if deadline < now {
		return relayerr.Validation("ERR_DEADLINE_EXPIRED", "meta-transaction deadline has passed", nil)
	}
	return nil
}

// ChainID validates that chainID is registered in reg.
func ChainID(reg *registry.Registry, chainID uint64) error {
	if _, ok := reg.Get(chainID); !ok {
		return relayerr.Validation("ERR_UNSUPPORTED_CHAIN", "chain id is not registered", nil)
	}
	return nil
}

// Checksum returns the EIP-55 checksummed form of a valid address.
func Checksum(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", relayerr.Validation("ERR_INVALID_ADDRESS", "not a well-formed address", nil)
	}
	return common.HexToAddress(addr).Hex(), nil
}

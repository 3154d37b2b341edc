// Package forwarder ABI-encodes and decodes calls against the relay's
// on-chain meta-transaction forwarder contract: getNonce,
// executeMetaTransaction, and executeTokenMetaTransaction. The argument
// lists mirror the MetaTransaction EIP-712 struct fields internal/signer
// hashes, which is what the contract verifies on its side.
package forwarder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/airchainpay/relay/internal/models"
	"github.com/airchainpay/relay/internal/relayerr"
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

var (
	getNonceSelector           = methodSelector("getNonce(address)")
	getPaymentTypehashSelector = methodSelector("getPaymentTypehash()")
	getTokenPaymentTypehashSel = methodSelector("getTokenPaymentTypehash()")
	getEip712DomainSelector    = methodSelector("getEip712Domain()")
	executeMetaSelector        = methodSelector(
		"executeMetaTransaction(address,address,uint256,bytes,uint256,uint256,bytes)")
	executeTokenMetaSelector = methodSelector(
		"executeTokenMetaTransaction(address,address,address,uint256,bytes,uint256,uint256,bytes)")
)

func methodSelector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

// EncodeGetNonce packs a call to getNonce(address) for the given account.
func EncodeGetNonce(account string) []byte {
	args := abi.Arguments{{Type: mustType("address")}}
	packed, _ := args.Pack(common.HexToAddress(account))
	return append(append([]byte{}, getNonceSelector...), packed...)
}

// DecodeUint256 unpacks a single uint256 return value, as produced by
// getNonce.
func DecodeUint256(result []byte) (*big.Int, error) {
	if len(result) != 32 {
		return nil, relayerr.Crypto("ERR_RPC_PARSE", "expected a single uint256 return value", nil)
	}
	return new(big.Int).SetBytes(result), nil
}

// EncodeGetPaymentTypehash packs a call to the forwarder's
// getPaymentTypehash() accessor, the EIP-712 struct typehash the deployed
// contract verifies native-value meta-transactions against.
func EncodeGetPaymentTypehash() []byte {
	return append([]byte{}, getPaymentTypehashSelector...)
}

// EncodeGetTokenPaymentTypehash packs a call to getTokenPaymentTypehash(),
// the typehash for ERC-20-denominated meta-transactions.
func EncodeGetTokenPaymentTypehash() []byte {
	return append([]byte{}, getTokenPaymentTypehashSel...)
}

// EncodeGetEip712Domain packs a call to getEip712Domain(), the deployed
// contract's own EIP-712 domain separator.
func EncodeGetEip712Domain() []byte {
	return append([]byte{}, getEip712DomainSelector...)
}

// DecodeBytes32 unpacks a single bytes32 return value, as produced by the
// typehash and domain accessors.
func DecodeBytes32(result []byte) ([32]byte, error) {
	if len(result) != 32 {
		return [32]byte{}, relayerr.Crypto("ERR_RPC_PARSE", "expected a single bytes32 return value", nil)
	}
	var out [32]byte
	copy(out[:], result)
	return out, nil
}

// EncodeExecuteMetaTransaction packs a call to the forwarder's native-value
// meta-transaction entry point.
func EncodeExecuteMetaTransaction(tx models.MetaTransaction, data []byte, signature []byte) ([]byte, error) {
	value, ok := new(big.Int).SetString(tx.Value, 10)
	if !ok {
		return nil, relayerr.Validation("ERR_INVALID_AMOUNT", "meta transaction value is not a valid decimal integer", nil)
	}

	args := abi.Arguments{
		{Type: mustType("address")},
		{Type: mustType("address")},
		{Type: mustType("uint256")},
		{Type: mustType("bytes")},
		{Type: mustType("uint256")},
		{Type: mustType("uint256")},
		{Type: mustType("bytes")},
	}
	packed, err := args.Pack(
		common.HexToAddress(tx.From),
		common.HexToAddress(tx.To),
		value,
		data,
		new(big.Int).SetUint64(tx.Nonce),
		big.NewInt(tx.Deadline),
		signature,
	)
	if err != nil {
		return nil, relayerr.Crypto("ERR_ABI_ENCODE", "failed to encode executeMetaTransaction call", err)
	}
	return append(append([]byte{}, executeMetaSelector...), packed...), nil
}

// EncodeExecuteTokenMetaTransaction packs a call to the forwarder's
// ERC-20-denominated meta-transaction entry point.
func EncodeExecuteTokenMetaTransaction(tx models.MetaTransaction, data []byte, signature []byte) ([]byte, error) {
	value, ok := new(big.Int).SetString(tx.Value, 10)
	if !ok {
		return nil, relayerr.Validation("ERR_INVALID_AMOUNT", "meta transaction value is not a valid decimal integer", nil)
	}
	if !common.IsHexAddress(tx.Token) {
		return nil, relayerr.Validation("ERR_UNSUPPORTED_TOKEN", "token address is not well-formed", nil)
	}

	args := abi.Arguments{
		{Type: mustType("address")},
		{Type: mustType("address")},
		{Type: mustType("address")},
		{Type: mustType("uint256")},
		{Type: mustType("bytes")},
		{Type: mustType("uint256")},
		{Type: mustType("uint256")},
		{Type: mustType("bytes")},
	}
	packed, err := args.Pack(
		common.HexToAddress(tx.Token),
		common.HexToAddress(tx.From),
		common.HexToAddress(tx.To),
		value,
		data,
		new(big.Int).SetUint64(tx.Nonce),
		big.NewInt(tx.Deadline),
		signature,
	)
	if err != nil {
		return nil, relayerr.Crypto("ERR_ABI_ENCODE", "failed to encode executeTokenMetaTransaction call", err)
	}
	return append(append([]byte{}, executeTokenMetaSelector...), packed...), nil
}

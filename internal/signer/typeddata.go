package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/airchainpay/relay/internal/models"
	"github.com/airchainpay/relay/internal/relayerr"
)

// decodeData interprets a MetaTransaction's Data field as 0x-prefixed hex
// call data, treating an empty string as no call data at all.
func decodeData(data string) ([]byte, error) {
	if data == "" {
		return nil, nil
	}
	if len(data) < 2 || data[:2] != "0x" {
		return nil, relayerr.Validation("ERR_INVALID_INPUT", "meta transaction data must be 0x-prefixed hex", nil)
	}
	return common.FromHex(data), nil
}

// StructHash computes the EIP-712 struct hash of a MetaTransaction under
// typeHash, dispatching to the token field layout (which additionally binds
// the token contract address) when the envelope names one. typeHash is
// never assumed locally: the meta-tx path reads it from the deployed
// forwarder contract at admission time, so the digest the relay verifies is
// always the digest that contract will verify.
func StructHash(typeHash [32]byte, tx models.MetaTransaction) ([32]byte, error) {
	value, ok := new(big.Int).SetString(tx.Value, 10)
	if !ok {
		return [32]byte{}, relayerr.Validation("ERR_INVALID_AMOUNT", "meta transaction value is not a valid decimal integer", nil)
	}
	data, err := decodeData(tx.Data)
	if err != nil {
		return [32]byte{}, err
	}

	if tx.Token != "" {
		args := abi.Arguments{
			{Type: mustType("bytes32")},
			{Type: mustType("address")},
			{Type: mustType("address")},
			{Type: mustType("address")},
			{Type: mustType("uint256")},
			{Type: mustType("bytes32")},
			{Type: mustType("uint256")},
			{Type: mustType("uint256")},
		}
		packed, err := args.Pack(
			typeHash,
			common.HexToAddress(tx.From),
			common.HexToAddress(tx.To),
			common.HexToAddress(tx.Token),
			value,
			crypto.Keccak256Hash(data),
			new(big.Int).SetUint64(tx.Nonce),
			big.NewInt(tx.Deadline),
		)
		if err != nil {
			return [32]byte{}, err
		}
		return crypto.Keccak256Hash(packed), nil
	}

	args := abi.Arguments{
		{Type: mustType("bytes32")},
		{Type: mustType("address")},
		{Type: mustType("address")},
		{Type: mustType("uint256")},
		{Type: mustType("bytes32")},
		{Type: mustType("uint256")},
		{Type: mustType("uint256")},
	}
	packed, err := args.Pack(
		typeHash,
		common.HexToAddress(tx.From),
		common.HexToAddress(tx.To),
		value,
		crypto.Keccak256Hash(data),
		new(big.Int).SetUint64(tx.Nonce),
		big.NewInt(tx.Deadline),
	)
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.Keccak256Hash(packed), nil
}

// Digest computes the final EIP-712 signing digest for a MetaTransaction:
// keccak256(0x1901 || domainSeparator || structHash). The domain separator,
// like the typehash, comes from the forwarder contract itself.
func Digest(domainSeparator [32]byte, structHash [32]byte) [32]byte {
	prefix := []byte{0x19, 0x01}
	buf := make([]byte, 0, len(prefix)+len(domainSeparator)+len(structHash))
	buf = append(buf, prefix...)
	buf = append(buf, domainSeparator[:]...)
	buf = append(buf, structHash[:]...)
	return crypto.Keccak256Hash(buf)
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Package signer is the Wallet Signer: it produces EIP-155 legacy transaction
// signatures and EIP-712 typed-data signatures for a vault-held key without
// ever letting the raw private key escape the scope of a single vault
// callback: every signature is a per-call borrow against internal/vault.Vault.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/airchainpay/relay/internal/relayerr"
	"github.com/airchainpay/relay/internal/vault"
)

var (
	secp256k1Order     = crypto.S256().Params().N
	secp256k1HalfOrder = new(big.Int).Rsh(secp256k1Order, 1)
)

// normalizeLowS rewrites a signature's S value to the lower half of the
// secp256k1 curve order when it isn't already, flipping the recovery bit to
// compensate, per EIP-2 / EIP-155 malleability rules.
func normalizeLowS(signature []byte) {
	s := new(big.Int).SetBytes(signature[32:64])
	if s.Cmp(secp256k1HalfOrder) > 0 {
		s.Sub(secp256k1Order, s)
		sBytes := s.Bytes()
		copy(signature[64-len(sBytes):64], sBytes)
		for i := 32; i < 64-len(sBytes); i++ {
			signature[i] = 0
		}
		signature[64] ^= 1
	}
}

// Signer signs on behalf of a single vault-held key handle.
type Signer struct {
	v       *vault.Vault
	handle  vault.KeyHandle
	address string
}

// New binds a Signer to a key handle already present in v.
func New(v *vault.Vault, handle vault.KeyHandle) (*Signer, error) {
	addr, err := v.Address(handle)
	if err != nil {
		return nil, err
	}
	return &Signer{v: v, handle: handle, address: addr}, nil
}

// Address returns the checksummed address this Signer signs for.
func (s *Signer) Address() string {
	return s.address
}

// SignLegacyTransaction signs tx under EIP-155 replay protection for chainID.
func (s *Signer) SignLegacyTransaction(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	var signed *types.Transaction
	err := s.v.With(s.handle, func(key *ecdsa.PrivateKey) error {
		ethSigner := types.NewEIP155Signer(chainID)
		var signErr error
		signed, signErr = types.SignTx(tx, ethSigner, key)
		return signErr
	})
	if err != nil {
		return nil, relayerr.Crypto("ERR_SIGN_TX", "legacy transaction signing failed", err)
	}
	return signed, nil
}

// SignDigest produces a raw R||S||V signature (V in {0,1}) over a 32-byte
// digest without any EIP-155 or EIP-712 V adjustment.
func (s *Signer) SignDigest(digest [32]byte) ([]byte, error) {
	var signature []byte
	err := s.v.With(s.handle, func(key *ecdsa.PrivateKey) error {
		sig, signErr := crypto.Sign(digest[:], key)
		if signErr != nil {
			return signErr
		}
		normalizeLowS(sig)
		signature = sig
		return nil
	})
	if err != nil {
		return nil, relayerr.Crypto("ERR_SIGN_DIGEST", "digest signing failed", err)
	}
	return signature, nil
}

// SignTypedDataDigest signs a precomputed EIP-712 digest
// (keccak256(0x1901 || domainSeparator || structHash)) and returns a
// signature with v in {27, 28}, the form contracts and off-chain verifiers
// expect from ecrecover against a raw digest.
func (s *Signer) SignTypedDataDigest(digest [32]byte) ([]byte, error) {
	signature, err := s.SignDigest(digest)
	if err != nil {
		return nil, err
	}
	signature[64] += 27
	return signature, nil
}

// VerifyTypedDataSignature checks that signature was produced by address over
// digest, accepting either the {27,28} or {0,1} recovery-id convention.
func VerifyTypedDataSignature(digest [32]byte, signature []byte, address string) (bool, error) {
	if len(signature) != 65 {
		return false, relayerr.Crypto("ERR_INVALID_SIGNATURE", fmt.Sprintf("signature must be 65 bytes, got %d", len(signature)), nil)
	}

	sigCopy := make([]byte, 65)
	copy(sigCopy, signature)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}

	pubKeyBytes, err := crypto.Ecrecover(digest[:], sigCopy)
	if err != nil {
		return false, relayerr.Crypto("ERR_INVALID_SIGNATURE", "public key recovery failed", err)
	}
	pubKey, err := crypto.UnmarshalPubkey(pubKeyBytes)
	if err != nil {
		return false, relayerr.Crypto("ERR_INVALID_SIGNATURE", "invalid recovered public key", err)
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	return recovered == common.HexToAddress(address), nil
}

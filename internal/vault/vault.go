// Package vault is the Wallet Key Vault: it generates and holds secp256k1
// signing keys behind an opaque handle so that private key material is
// never exposed to, or retained by, calling code. Every access to the raw
// key happens inside a caller-supplied closure, and the buffer backing the
// key is zeroed the moment the closure returns, on every exit path.
package vault

import (
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/airchainpay/relay/internal/relayerr"
	"github.com/airchainpay/relay/internal/services/crypto/zeroize"
	"github.com/airchainpay/relay/internal/services/hdwallet"
)

// KeyHandle is an opaque reference to key material held by a Vault. It
// carries no key bytes itself — callers must go through Vault.With to touch
// the key, and only for the duration of the callback.
type KeyHandle struct {
	id string
}

// ID returns the handle's identifier, safe to log or persist.
func (h KeyHandle) ID() string { return h.id }

type entry struct {
	privateKey []byte // 32 bytes, secp256k1
	address    string
}

// Vault holds key material in memory, keyed by opaque handle.
type Vault struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New constructs an empty Vault.
func New() *Vault {
	return &Vault{entries: make(map[string]*entry)}
}

// GenerateFromMnemonic derives a secp256k1 key at the given BIP44 path from a
// freshly generated or caller-supplied BIP39 mnemonic and returns an opaque
// handle plus the derived Ethereum address (safe to expose — it is public).
func (v *Vault) GenerateFromMnemonic(mnemonic, passphrase, path string) (KeyHandle, string, error) {
	if mnemonic == "" {
		generated, err := hdwallet.NewMnemonic()
		if err != nil {
			return KeyHandle{}, "", relayerr.Crypto("ERR_MNEMONIC", "failed to generate mnemonic", err)
		}
		mnemonic = generated
	}
	if err := hdwallet.ValidateMnemonic(mnemonic); err != nil {
		return KeyHandle{}, "", relayerr.Crypto("ERR_INVALID_MNEMONIC", "mnemonic failed BIP39 checksum", err)
	}

	privBytes, err := hdwallet.DerivePrivateKey(mnemonic, passphrase, path)
	if err != nil {
		return KeyHandle{}, "", relayerr.Crypto("ERR_DERIVATION_PATH", "failed to derive key at path", err)
	}

	return v.store(privBytes)
}

// Import registers a raw 32-byte secp256k1 private key directly (used for
// operator-provisioned relay hot wallets rather than mnemonic-derived keys).
func (v *Vault) Import(privateKeyBytes []byte) (KeyHandle, string, error) {
	if len(privateKeyBytes) != 32 {
		return KeyHandle{}, "", relayerr.Crypto("ERR_PRIVATE_KEY", fmt.Sprintf("private key must be 32 bytes, got %d", len(privateKeyBytes)), nil)
	}
	if !validSecp256k1Key(privateKeyBytes) {
		return KeyHandle{}, "", relayerr.Crypto("ERR_PRIVATE_KEY", "private key is not a valid secp256k1 scalar", nil)
	}
	cp := make([]byte, 32)
	copy(cp, privateKeyBytes)
	return v.store(cp)
}

func validSecp256k1Key(b []byte) bool {
	_, pub := btcec.PrivKeyFromBytes(b)
	return pub != nil
}

func (v *Vault) store(privBytes []byte) (KeyHandle, string, error) {
	ecdsaKey, err := crypto.ToECDSA(privBytes)
	if err != nil {
		zeroize.Bytes(privBytes)
		return KeyHandle{}, "", relayerr.Crypto("ERR_PRIVATE_KEY", "private key failed ECDSA parse", err)
	}
	address := crypto.PubkeyToAddress(ecdsaKey.PublicKey).Hex()

	id := uuid.NewString()

	v.mu.Lock()
	v.entries[id] = &entry{privateKey: privBytes, address: address}
	v.mu.Unlock()

	return KeyHandle{id: id}, address, nil
}

// Address returns the public address for a handle without touching the
// private key.
func (v *Vault) Address(h KeyHandle) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries[h.id]
	if !ok {
		return "", relayerr.Crypto("ERR_KEY_NOT_FOUND", "unknown key handle", nil)
	}
	return e.address, nil
}

// With invokes fn with the *ecdsa.PrivateKey for h. The key is reconstructed
// just-in-time, handed to fn, and then its backing bytes are zeroed before
// With returns — fn must not retain a reference to the key beyond the call.
func (v *Vault) With(h KeyHandle, fn func(*ecdsa.PrivateKey) error) error {
	v.mu.Lock()
	e, ok := v.entries[h.id]
	v.mu.Unlock()
	if !ok {
		return relayerr.Crypto("ERR_KEY_NOT_FOUND", "unknown key handle", nil)
	}

	keyCopy := make([]byte, len(e.privateKey))
	copy(keyCopy, e.privateKey)
	defer zeroize.Bytes(keyCopy)

	ecdsaKey, err := crypto.ToECDSA(keyCopy)
	if err != nil {
		return relayerr.Crypto("ERR_PRIVATE_KEY", "private key failed ECDSA parse", err)
	}

	return fn(ecdsaKey)
}

// Validate re-checks that the key behind h is a well-formed secp256k1
// scalar, without exposing its bytes to the caller.
func (v *Vault) Validate(h KeyHandle) error {
	v.mu.Lock()
	e, ok := v.entries[h.id]
	v.mu.Unlock()
	if !ok {
		return relayerr.Crypto("ERR_KEY_NOT_FOUND", "unknown key handle", nil)
	}
	if !validSecp256k1Key(e.privateKey) {
		return relayerr.Crypto("ERR_PRIVATE_KEY", "private key is not a valid secp256k1 scalar", nil)
	}
	return nil
}

// Forget removes a key from the vault and zeroes its backing buffer.
func (v *Vault) Forget(h KeyHandle) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if e, ok := v.entries[h.id]; ok {
		zeroize.Bytes(e.privateKey)
		delete(v.entries, h.id)
	}
}

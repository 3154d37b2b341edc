// Package hdwallet derives the relay's operator signing keys: BIP39
// mnemonic generation and validation plus BIP32 derivation along an
// Ethereum-style path down to a raw secp256k1 private key.
package hdwallet

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
	"github.com/tyler-smith/go-bip39/wordlists"

	"github.com/airchainpay/relay/internal/services/crypto/zeroize"
)

func init() {
	bip39.SetWordList(wordlists.English)
}

// NewMnemonic generates a fresh 24-word BIP39 mnemonic from 256 bits of
// OS-CSPRNG entropy.
func NewMnemonic() (string, error) {
	entropy := make([]byte, 32)
	if _, err := rand.Read(entropy); err != nil {
		return "", fmt.Errorf("generating mnemonic entropy: %w", err)
	}
	defer zeroize.Bytes(entropy)
	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic checks a mnemonic's word list membership and checksum.
func ValidateMnemonic(mnemonic string) error {
	if strings.TrimSpace(mnemonic) == "" {
		return errors.New("mnemonic must not be empty")
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return errors.New("mnemonic failed wordlist or checksum validation")
	}
	return nil
}

// DerivePrivateKey runs mnemonic (+ optional BIP39 passphrase) through seed
// generation and BIP32 derivation along path (e.g. "m/44'/60'/0'/0/0"),
// returning the raw 32-byte secp256k1 private key at the leaf. The
// intermediate seed is zeroed before returning; the caller owns the
// returned key bytes and is responsible for scrubbing them.
func DerivePrivateKey(mnemonic, passphrase, path string) ([]byte, error) {
	if err := ValidateMnemonic(mnemonic); err != nil {
		return nil, err
	}

	seed := bip39.NewSeed(mnemonic, passphrase)
	defer zeroize.Bytes(seed)

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("deriving master key: %w", err)
	}

	indices, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	for _, idx := range indices {
		if key, err = key.Derive(idx); err != nil {
			return nil, fmt.Errorf("deriving child key at %#x: %w", idx, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extracting leaf private key: %w", err)
	}
	return priv.Serialize(), nil
}

// parsePath splits a "m/44'/60'/0'/0/0"-style derivation path into child
// indices, applying the hardened bit for components marked with '.
func parsePath(path string) ([]uint32, error) {
	trimmed := strings.TrimPrefix(path, "m/")
	if trimmed == "" || trimmed == "m" {
		return nil, nil
	}

	components := strings.Split(trimmed, "/")
	indices := make([]uint32, 0, len(components))
	for i, component := range components {
		hardened := strings.HasSuffix(component, "'")
		component = strings.TrimSuffix(component, "'")

		index, err := strconv.ParseUint(component, 10, 32)
		if err != nil || index >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("invalid derivation path component %d: %q", i, component)
		}
		if hardened {
			index += uint64(hdkeychain.HardenedKeyStart)
		}
		indices = append(indices, uint32(index))
	}
	return indices, nil
}

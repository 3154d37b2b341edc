// Package ble is the BLE Payment Codec: it encrypts and decrypts the
// payment envelopes exchanged over an offline Bluetooth Low Energy channel,
// sealing canonical JSON under an AEAD with a caller-supplied session key
// and the compact nonce||ciphertext wire shape
// a constrained BLE link needs.
package ble

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/airchainpay/relay/internal/relayerr"
)

// Algorithm selects which AEAD construction backs a Codec.
type Algorithm int

const (
	AlgorithmAESGCM Algorithm = iota
	AlgorithmChaCha20Poly1305
)

// Codec seals and opens BLE payment envelopes with a fixed 32-byte session
// key under an AEAD of the caller's choosing.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a Codec from a 32-byte key. The key is typically derived
// out-of-band (e.g. via an ECDH exchange during BLE pairing) — this package
// only handles the symmetric sealing step.
func NewCodec(key []byte, algorithm Algorithm) (*Codec, error) {
	if len(key) != 32 {
		return nil, relayerr.Crypto("ERR_BLE_KEY_LENGTH", fmt.Sprintf("key must be 32 bytes, got %d", len(key)), nil)
	}

	var aead cipher.AEAD
	var err error

	switch algorithm {
	case AlgorithmAESGCM:
		block, aesErr := aes.NewCipher(key)
		if aesErr != nil {
			return nil, relayerr.Crypto("ERR_BLE_CIPHER_INIT", "failed to init AES cipher", aesErr)
		}
		aead, err = cipher.NewGCM(block)
	case AlgorithmChaCha20Poly1305:
		aead, err = chacha20poly1305.New(key)
	default:
		return nil, relayerr.Crypto("ERR_BLE_ALGORITHM", "unknown AEAD algorithm", nil)
	}
	if err != nil {
		return nil, relayerr.Crypto("ERR_BLE_CIPHER_INIT", "failed to init AEAD", err)
	}

	return &Codec{aead: aead}, nil
}

// Seal encrypts plaintext with an optional associated-data header (e.g. a
// protocol version byte) and returns nonce || ciphertext || tag.
func (c *Codec) Seal(plaintext, associatedData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, relayerr.Crypto("ERR_BLE_NONCE", "failed to generate nonce", err)
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, associatedData)
	return append(nonce, sealed...), nil
}

// Open reverses Seal, verifying the AEAD tag before returning plaintext.
func (c *Codec) Open(envelope, associatedData []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(envelope) < nonceSize {
		return nil, relayerr.Crypto("ERR_BLE_ENVELOPE_SHORT", "envelope shorter than nonce", nil)
	}

	nonce, ciphertext := envelope[:nonceSize], envelope[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, relayerr.Crypto("ERR_BLE_AUTH_FAILED", "AEAD authentication failed", err)
	}
	return plaintext, nil
}

package ble

import (
	"encoding/json"

	"github.com/airchainpay/relay/internal/relayerr"
)

// minEnvelopeBytes is the shortest input Decrypt will even attempt: a
// 12-byte AEAD nonce plus at least one byte of sealed data.
const minEnvelopeBytes = 13

// PaymentData is the payload exchanged over an offline Bluetooth link
// between two phones before one of them has a path back to the relay.
type PaymentData struct {
	Amount      string `json:"amount"`
	ToAddress   string `json:"to_address"`
	TokenSymbol string `json:"token_symbol"`
	Network     string `json:"network"`
	Reference   string `json:"reference,omitempty"`
}

// EncryptPayment serializes p as canonical JSON and seals it with codec,
// producing the wire envelope nonce || ciphertext || tag.
func EncryptPayment(codec *Codec, p PaymentData) ([]byte, error) {
	plaintext, err := json.Marshal(p)
	if err != nil {
		return nil, relayerr.Crypto("ERR_BLE_ENCODE", "failed to marshal payment payload", err)
	}
	return codec.Seal(plaintext, nil)
}

// DecryptPayment reverses EncryptPayment, rejecting any envelope shorter
// than the minimum nonce-plus-ciphertext length before touching the AEAD.
func DecryptPayment(codec *Codec, envelope []byte) (PaymentData, error) {
	if len(envelope) < minEnvelopeBytes {
		return PaymentData{}, relayerr.Crypto("ERR_BLE_ENVELOPE_SHORT", "envelope shorter than minimum nonce+ciphertext length", nil)
	}
	plaintext, err := codec.Open(envelope, nil)
	if err != nil {
		return PaymentData{}, err
	}
	var p PaymentData
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return PaymentData{}, relayerr.Crypto("ERR_BLE_DECODE", "failed to unmarshal payment payload", err)
	}
	return p, nil
}

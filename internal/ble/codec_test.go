package ble

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestSealOpenRoundTripAESGCM(t *testing.T) {
	codec, err := NewCodec(randomKey(t), AlgorithmAESGCM)
	require.NoError(t, err)

	plaintext := []byte(`{"to":"0xabc","amount":"100"}`)
	envelope, err := codec.Seal(plaintext, nil)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, envelope)

	opened, err := codec.Open(envelope, nil)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestSealOpenRoundTripChaCha20Poly1305(t *testing.T) {
	codec, err := NewCodec(randomKey(t), AlgorithmChaCha20Poly1305)
	require.NoError(t, err)

	plaintext := []byte("offline payment envelope")
	envelope, err := codec.Seal(plaintext, []byte("v1"))
	require.NoError(t, err)

	opened, err := codec.Open(envelope, []byte("v1"))
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestOpenRejectsWrongAssociatedData(t *testing.T) {
	codec, err := NewCodec(randomKey(t), AlgorithmAESGCM)
	require.NoError(t, err)

	envelope, err := codec.Seal([]byte("payload"), []byte("header-a"))
	require.NoError(t, err)

	_, err = codec.Open(envelope, []byte("header-b"))
	require.Error(t, err)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	codec, err := NewCodec(randomKey(t), AlgorithmAESGCM)
	require.NoError(t, err)

	envelope, err := codec.Seal([]byte("payload"), nil)
	require.NoError(t, err)
	envelope[len(envelope)-1] ^= 0xFF

	_, err = codec.Open(envelope, nil)
	require.Error(t, err)
}

func TestNewCodecRejectsBadKeyLength(t *testing.T) {
	_, err := NewCodec([]byte("too-short"), AlgorithmAESGCM)
	require.Error(t, err)
}

func TestOpenRejectsShortEnvelope(t *testing.T) {
	codec, err := NewCodec(randomKey(t), AlgorithmAESGCM)
	require.NoError(t, err)

	_, err = codec.Open([]byte("x"), nil)
	require.Error(t, err)
}

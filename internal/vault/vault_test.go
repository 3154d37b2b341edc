package vault

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/airchainpay/relay/internal/services/crypto/zeroize"
)

// Well-known test vector mnemonic; never holds funds.
const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestGenerateFromMnemonicIsDeterministic(t *testing.T) {
	v := New()
	h1, addr1, err := v.GenerateFromMnemonic(testMnemonic, "", "m/44'/60'/0'/0/0")
	require.NoError(t, err)
	h2, addr2, err := v.GenerateFromMnemonic(testMnemonic, "", "m/44'/60'/0'/0/0")
	require.NoError(t, err)

	require.Equal(t, addr1, addr2)
	require.NotEqual(t, h1.ID(), h2.ID())
}

func TestGenerateFreshMnemonicWhenEmpty(t *testing.T) {
	v := New()
	h, addr, err := v.GenerateFromMnemonic("", "", "m/44'/60'/0'/0/0")
	require.NoError(t, err)
	require.NotEmpty(t, addr)
	require.NoError(t, v.Validate(h))
}

func TestImportRejectsInvalidScalars(t *testing.T) {
	v := New()

	_, _, err := v.Import(make([]byte, 16))
	require.Error(t, err)

	_, _, err = v.Import(make([]byte, 32)) // zero is not in the group
	require.Error(t, err)
}

func TestWithProvidesUsableKeyWithoutRetention(t *testing.T) {
	v := New()
	h, addr, err := v.GenerateFromMnemonic(testMnemonic, "", "m/44'/60'/0'/0/0")
	require.NoError(t, err)

	digest := crypto.Keccak256([]byte("payload"))
	var sig []byte
	err = v.With(h, func(key *ecdsa.PrivateKey) error {
		var signErr error
		sig, signErr = crypto.Sign(digest, key)
		return signErr
	})
	require.NoError(t, err)
	require.Len(t, sig, 65)

	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	require.Equal(t, addr, crypto.PubkeyToAddress(*pub).Hex())
}

func TestWithZeroizesOnPanic(t *testing.T) {
	v := New()
	h, _, err := v.GenerateFromMnemonic(testMnemonic, "", "m/44'/60'/0'/0/0")
	require.NoError(t, err)

	require.Panics(t, func() {
		_ = v.With(h, func(*ecdsa.PrivateKey) error {
			panic("handler blew up")
		})
	})

	// The vault must still be usable after an unwound borrow.
	require.NoError(t, v.Validate(h))
	require.NoError(t, v.With(h, func(*ecdsa.PrivateKey) error { return nil }))
}

func TestForgetIsIrreversible(t *testing.T) {
	v := New()
	h, _, err := v.GenerateFromMnemonic(testMnemonic, "", "m/44'/60'/0'/0/0")
	require.NoError(t, err)

	v.Forget(h)

	require.Error(t, v.Validate(h))
	require.Error(t, v.With(h, func(*ecdsa.PrivateKey) error { return nil }))
	_, err = v.Address(h)
	require.Error(t, err)
}

func TestZeroizeBytesScrubsBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	zeroize.Bytes(buf)
	require.Equal(t, []byte{0, 0, 0, 0}, buf)
}

package devcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey = "0123456789abcdef"
	testIV  = "fedcba9876543210"
)

func TestNewCBCContext_Lengths(t *testing.T) {
	_, err := NewCBCContext(testKey, testIV)
	assert.NoError(t, err)

	_, err = NewCBCContext("short", testIV)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = NewCBCContext(testKey, "short-iv")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestCBCContext_RoundTrip(t *testing.T) {
	ctx, err := NewCBCContext(testKey, testIV)
	require.NoError(t, err)

	tests := []string{
		`{"operation":"login"}`,
		"",
		"exactly 16 bytes",
		`{"error_code":0,"result":{"stok":"deco-00112233aabbccdd"}}`,
		"unicode: ümläut ✓",
	}
	for _, plaintext := range tests {
		enc := ctx.EncryptB64(plaintext)
		got, err := ctx.DecryptB64(enc)
		require.NoError(t, err, "plaintext %q", plaintext)
		assert.Equal(t, plaintext, got)
	}
}

func TestCBCContext_DecryptErrors(t *testing.T) {
	ctx, err := NewCBCContext(testKey, testIV)
	require.NoError(t, err)

	t.Run("not base64", func(t *testing.T) {
		_, err := ctx.DecryptB64("!!! not base64 !!!")
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("not block aligned", func(t *testing.T) {
		_, err := ctx.DecryptB64(base64.StdEncoding.EncodeToString([]byte("12345")))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("pad byte out of range", func(t *testing.T) {
		// Encrypt a block whose final plaintext byte is 0, an illegal
		// PKCS#7 pad value.
		block, err := aes.NewCipher([]byte(testKey))
		require.NoError(t, err)
		plain := make([]byte, aes.BlockSize) // all zero
		raw := make([]byte, aes.BlockSize)
		cipher.NewCBCEncrypter(block, []byte(testIV)).CryptBlocks(raw, plain)

		_, err = ctx.DecryptB64(base64.StdEncoding.EncodeToString(raw))
		assert.ErrorIs(t, err, ErrInvalidPadding)
	})
}

func TestCBCContext_RawASCIIKeyConvention(t *testing.T) {
	// The key/IV are the literal sign-payload text, even when that text is
	// itself hex-looking. Two contexts built from the same text must agree.
	a, err := NewCBCContext(testKey, testIV)
	require.NoError(t, err)
	b, err := NewCBCContext(testKey, testIV)
	require.NoError(t, err)

	enc := a.EncryptB64("cross-context payload")
	got, err := b.DecryptB64(enc)
	require.NoError(t, err)
	assert.Equal(t, "cross-context payload", got)
}

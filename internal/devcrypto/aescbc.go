package devcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"unicode/utf8"
)

// CBCContext is the AES-CBC session cipher negotiated at login. Key and IV
// are the literal ASCII bytes recovered from the sign payload's k=/i=
// fields; decoding them first would break interoperability with the real
// firmware's javascript.
type CBCContext struct {
	key []byte
	iv  []byte
}

// NewCBCContext builds a session cipher from the raw-text key and IV.
// Lengths are validated up front so decrypt/encrypt cannot fail later on
// cipher construction.
func NewCBCContext(key, iv string) (*CBCContext, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: aes key length %d", ErrInvalidPayload, len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv length %d", ErrInvalidPayload, len(iv))
	}
	return &CBCContext{key: []byte(key), iv: []byte(iv)}, nil
}

// DecryptB64 base64-decodes and AES-CBC-decrypts a payload, validates the
// trailing PKCS#7 pad byte, strips the padding, and returns the UTF-8
// plaintext.
func (c *CBCContext) DecryptB64(encrypted string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d", ErrInvalidPayload, len(raw))
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, c.iv).CryptBlocks(plain, raw)

	pad := int(plain[len(plain)-1])
	if pad < 1 || pad > aes.BlockSize {
		return "", fmt.Errorf("%w: pad byte %d", ErrInvalidPadding, pad)
	}
	plain = plain[:len(plain)-pad]
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: plaintext is not valid utf-8", ErrInvalidPayload)
	}
	return string(plain), nil
}

// EncryptB64 PKCS#7-pads, AES-CBC-encrypts, and base64-encodes a plaintext.
// It cannot fail: the key and IV were validated at construction.
func (c *CBCContext) EncryptB64(plaintext string) string {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		// Unreachable: key length checked in NewCBCContext.
		panic(err)
	}
	data := []byte(plaintext)
	pad := aes.BlockSize - len(data)%aes.BlockSize
	data = append(data, bytes.Repeat([]byte{byte(pad)}, pad)...)

	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, c.iv).CryptBlocks(out, data)
	return base64.StdEncoding.EncodeToString(out)
}

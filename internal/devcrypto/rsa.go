// Package devcrypto implements the login-handshake primitives shared by the
// emulated TP-Link dialects: an RSA key pair whose public half is exported as
// hex for in-browser encryption, and the AES-CBC session cipher negotiated
// through it.
package devcrypto

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Sentinel errors surfaced to the request boundary. Profiles map these to
// their dialect-specific error codes.
var (
	ErrInvalidSignPayload = errors.New("invalid sign payload")
	ErrInvalidPadding     = errors.New("invalid pkcs7 padding")
	ErrInvalidPayload     = errors.New("invalid encrypted payload")
)

// KeyPair holds the per-instance RSA key used for the login key exchange.
// Clients encrypt the session key/IV against the exported modulus in
// fixed-size PKCS#1 v1.5 blocks, legacy-firmware style (no OAEP).
type KeyPair struct {
	priv *rsa.PrivateKey
}

// GenerateKeyPair creates a fresh key pair. bits is 1024 for the Deco
// dialect and 2048 for the Archer dialect.
func GenerateKeyPair(bits int) (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// NHex returns the public modulus as lowercase hex without a 0x prefix,
// the wire format the login pages expect.
func (k *KeyPair) NHex() string {
	return k.priv.PublicKey.N.Text(16)
}

// EHex returns the public exponent as lowercase hex.
func (k *KeyPair) EHex() string {
	return strconv.FormatInt(int64(k.priv.PublicKey.E), 16)
}

// BlockSize returns the RSA block size in bytes.
func (k *KeyPair) BlockSize() int {
	return (k.priv.PublicKey.N.BitLen() + 7) / 8
}

// DecryptSignChunks recovers the plaintext of a TP-Link "sign" blob: hex
// ciphertext split into key-length blocks, each independently PKCS#1 v1.5
// encrypted. Trailing NUL padding is stripped from the concatenated result.
func (k *KeyPair) DecryptSignChunks(signHex string) (string, error) {
	blockHexLen := k.BlockSize() * 2
	var sb strings.Builder
	for i := 0; i < len(signHex); i += blockHexLen {
		end := i + blockHexLen
		if end > len(signHex) {
			end = len(signHex)
		}
		chunk, err := hex.DecodeString(signHex[i:end])
		if err != nil {
			return "", fmt.Errorf("%w: bad hex chunk at offset %d", ErrInvalidSignPayload, i)
		}
		plain, err := rsa.DecryptPKCS1v15(nil, k.priv, chunk)
		if err != nil {
			return "", fmt.Errorf("%w: chunk at offset %d does not decrypt", ErrInvalidSignPayload, i)
		}
		sb.Write(plain)
	}
	text := strings.TrimRight(sb.String(), "\x00")
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: plaintext is not valid utf-8", ErrInvalidSignPayload)
	}
	return text, nil
}

var signFieldRe = regexp.MustCompile(`([a-zA-Z0-9_]+)=([^&]+)`)

// ParseSignFields splits a decrypted sign payload ("k=...&i=...&s=...") into
// its key/value fields. Values keep their literal ASCII form; the session
// cipher is keyed on those raw bytes, not on any decoded representation.
func ParseSignFields(text string) map[string]string {
	fields := make(map[string]string)
	for _, m := range signFieldRe.FindAllStringSubmatch(text, -1) {
		fields[m[1]] = m[2]
	}
	return fields
}

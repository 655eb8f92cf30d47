package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"math/big"
	"testing"
)

// EncryptSignChunks performs the client side of the TP-Link key exchange:
// the plaintext is split into PKCS#1 v1.5 sized chunks, each encrypted
// against the exported (modulus, exponent) pair, and the ciphertext blocks
// are concatenated as hex. Mirrors what the firmware's login javascript does.
func EncryptSignChunks(t *testing.T, nHex, eHex, text string) string {
	t.Helper()

	n, ok := new(big.Int).SetString(nHex, 16)
	if !ok {
		t.Fatalf("bad modulus hex %q", nHex)
	}
	e, ok := new(big.Int).SetString(eHex, 16)
	if !ok {
		t.Fatalf("bad exponent hex %q", eHex)
	}
	pub := &rsa.PublicKey{N: n, E: int(e.Int64())}

	chunkSize := pub.Size() - 11
	data := []byte(text)
	var out string
	for len(data) > 0 {
		end := chunkSize
		if end > len(data) {
			end = len(data)
		}
		block, err := rsa.EncryptPKCS1v15(rand.Reader, pub, data[:end])
		if err != nil {
			t.Fatalf("encrypt sign chunk: %v", err)
		}
		out += hex.EncodeToString(block)
		data = data[end:]
	}
	return out
}

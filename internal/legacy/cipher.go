package legacy

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Key range of the additive cipher: 'A'..'J'.
const (
	minCipherKey = 65
	maxCipherKey = 74
)

// Encrypt adds a random key in A..J to every byte (mod 256) and appends the
// key as the final byte.
func Encrypt(plain []byte) ([]byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxCipherKey-minCipherKey+1))
	if err != nil {
		return nil, fmt.Errorf("choosing cipher key: %w", err)
	}
	return EncryptWithKey(plain, byte(minCipherKey+n.Int64())), nil
}

// EncryptWithKey is Encrypt with a caller-chosen key.
func EncryptWithKey(plain []byte, key byte) []byte {
	out := make([]byte, len(plain)+1)
	for i, b := range plain {
		out[i] = b + key
	}
	out[len(plain)] = key
	return out
}

// Decrypt reverses Encrypt using the key stored in the last byte.
func Decrypt(enc []byte) ([]byte, error) {
	if len(enc) == 0 {
		return nil, fmt.Errorf("empty ciphertext")
	}
	key := enc[len(enc)-1]
	body := enc[:len(enc)-1]
	out := make([]byte, len(body))
	for i, b := range body {
		out[i] = b - key
	}
	return out, nil
}

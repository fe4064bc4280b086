package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"sparsechat/internal/domain"
)

const (
	// NonceSize is the length of the nonce prefixed to every ciphertext.
	NonceSize = chacha20poly1305.NonceSize
	// Overhead is the authentication tag length.
	Overhead = chacha20poly1305.Overhead
)

// nonceSource is swapped in tests only.
var nonceSource io.Reader = rand.Reader

// Seal encrypts plaintext under key with a fresh random nonce and returns
// nonce || ciphertext || tag. Sealing with a key that did not come out of a
// successful derivation is a programming error and panics.
func Seal(key SessionKey, plaintext []byte) ([]byte, error) {
	aead := mustAEAD(key)

	out := make([]byte, NonceSize, NonceSize+len(plaintext)+Overhead)
	if _, err := io.ReadFull(nonceSource, out); err != nil {
		return nil, fmt.Errorf("crypto: reading nonce: %w", err)
	}
	return aead.Seal(out, out[:NonceSize], plaintext, nil), nil
}

// Open splits the leading nonce off input and authenticates and decrypts the
// rest. It returns ErrTruncated when input cannot hold a nonce and
// ErrAuthenticationFailed for any tag mismatch; it never returns partial
// plaintext.
func Open(key SessionKey, input []byte) ([]byte, error) {
	aead := mustAEAD(key)

	if len(input) < NonceSize {
		return nil, fmt.Errorf("%w: %d bytes", domain.ErrTruncated, len(input))
	}
	nonce, ct := input[:NonceSize], input[NonceSize:]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, domain.ErrAuthenticationFailed
	}
	return pt, nil
}

func mustAEAD(key SessionKey) interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
} {
	if !key.Valid() {
		panic("crypto: session key used before derivation")
	}
	aead, err := chacha20poly1305.New(key.key[:])
	if err != nil {
		// Only possible with a wrong key length, which SymmetricKey rules out.
		panic(err)
	}
	return aead
}

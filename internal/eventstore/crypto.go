package eventstore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeyProvider supplies the AEAD key used to encrypt persisted event
// payloads. It is invoked exactly once, at store construction — this spec
// does not implement key rotation (see DESIGN.md's Open Question
// resolution).
type KeyProvider func() ([chacha20poly1305.KeySize]byte, error)

// Cipher encrypts/decrypts persisted event payloads with ChaCha20-Poly1305.
// The in-memory event log is never encrypted; Cipher is only applied at the
// persistence boundary (this package's Persister snapshot and load path).
type Cipher struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// NewCipher builds a Cipher from a KeyProvider.
func NewCipher(provider KeyProvider) (*Cipher, error) {
	key, err := provider()
	if err != nil {
		return nil, fmt.Errorf("eventstore: key provider: %w", err)
	}
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("eventstore: construct AEAD: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext, prefixing the output with a fresh random nonce.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("eventstore: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a payload produced by Encrypt.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("eventstore: ciphertext too short")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("eventstore: decrypt: %w", err)
	}
	return plaintext, nil
}

// KeyFromHex parses a 64-character hex string into a chacha20poly1305 key,
// suitable for use as a KeyProvider's return value.
func KeyFromHex(hexKey string) KeyProvider {
	return func() ([chacha20poly1305.KeySize]byte, error) {
		var key [chacha20poly1305.KeySize]byte
		if len(hexKey) != chacha20poly1305.KeySize*2 {
			return key, fmt.Errorf("eventstore: key must be %d hex chars, got %d", chacha20poly1305.KeySize*2, len(hexKey))
		}
		decoded, err := hex.DecodeString(hexKey)
		if err != nil {
			return key, fmt.Errorf("eventstore: parse hex key: %w", err)
		}
		copy(key[:], decoded)
		return key, nil
	}
}

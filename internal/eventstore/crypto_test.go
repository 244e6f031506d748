package eventstore

import (
	"bytes"
	"encoding/hex"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"
)

func fixedKeyProvider(b byte) KeyProvider {
	return func() ([chacha20poly1305.KeySize]byte, error) {
		var key [chacha20poly1305.KeySize]byte
		for i := range key {
			key[i] = b
		}
		return key, nil
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher(fixedKeyProvider(0x42))
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("hello, encrypted event")
	ciphertext, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatal("expected ciphertext to differ from plaintext")
	}
	decrypted, err := c.Decrypt(ciphertext)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("expected round-trip to recover plaintext, got %q", decrypted)
	}
}

func TestCipher_TamperedCiphertextFails(t *testing.T) {
	c, _ := NewCipher(fixedKeyProvider(0x01))
	ciphertext, _ := c.Encrypt([]byte("secret"))
	ciphertext[len(ciphertext)-1] ^= 0xFF
	if _, err := c.Decrypt(ciphertext); err == nil {
		t.Fatal("expected tampered ciphertext to fail authentication")
	}
}

func TestKeyFromHex(t *testing.T) {
	raw := make([]byte, chacha20poly1305.KeySize)
	for i := range raw {
		raw[i] = byte(i)
	}
	hexKey := hex.EncodeToString(raw)

	provider := KeyFromHex(hexKey)
	key, err := provider()
	if err != nil {
		t.Fatal(err)
	}
	if key[0] != 0 || key[31] != 31 {
		t.Fatalf("unexpected key bytes: %x", key)
	}
}

func TestKeyFromHex_WrongLength(t *testing.T) {
	provider := KeyFromHex("tooshort")
	if _, err := provider(); err == nil {
		t.Fatal("expected an error for a too-short hex key")
	}
}

// Package security encrypts exchange API credentials at rest. Ciphertexts are
// XChaCha20-Poly1305 with a random nonce prefix, base64-encoded as a whole.
package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrInvalidCiphertext = errors.New("invalid ciphertext")

func aead(keyB64 string) (cipher.AEAD, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("credentials key is not valid base64: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("credentials key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return chacha20poly1305.NewX(key)
}

// EncryptString encrypts plaintext with the key from EXCHANGE_CREDENTIALS_KEY.
func EncryptString(plaintext string) (string, error) {
	return EncryptStringWithKey(plaintext, GetConfig().ExchangeCRKey)
}

// DecryptString reverses EncryptString.
func DecryptString(ciphertext string) (string, error) {
	return DecryptStringWithKey(ciphertext, GetConfig().ExchangeCRKey)
}

func EncryptStringWithKey(plaintext, keyB64 string) (string, error) {
	a, err := aead(keyB64)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, a.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := a.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func DecryptStringWithKey(ciphertext, keyB64 string) (string, error) {
	a, err := aead(keyB64)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(raw) < a.NonceSize() {
		return "", ErrInvalidCiphertext
	}

	nonce, sealed := raw[:a.NonceSize()], raw[a.NonceSize():]
	plain, err := a.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}

// NewKey generates a fresh random key in the format EXCHANGE_CREDENTIALS_KEY
// expects.
func NewKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

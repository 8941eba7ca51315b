// Package crypto seals hypervisor credentials (API tokens, passwords, node
// SSH keys) before they touch the database. AES-256-GCM, keyed off the
// panel's master encryption key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

var (
	ErrInvalidKey        = errors.New("crypto: invalid encryption key")
	ErrEncryptionFailed  = errors.New("crypto: encryption failed")
	ErrDecryptionFailed  = errors.New("crypto: decryption failed")
	ErrInvalidCipherText = errors.New("crypto: invalid cipher text")
)

// newGCM derives a 256-bit key from the configured master key and returns
// the AEAD. SHA-256 derivation lets operators configure any passphrase.
func newGCM(key string) (cipher.AEAD, error) {
	derived := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(derived[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals a credential for storage. The nonce is prepended to the
// ciphertext and the whole value base64-encoded, so one column holds it.
func Encrypt(plainText string, key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", ErrEncryptionFailed
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ErrEncryptionFailed
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a stored credential. A wrong key and a tampered value are
// indistinguishable: both fail GCM authentication.
func Decrypt(cipherText string, key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}

	data, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return "", ErrInvalidCipherText
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", ErrInvalidCipherText
	}

	plainText, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plainText), nil
}

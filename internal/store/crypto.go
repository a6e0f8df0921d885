package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for deriving the AES key from the configured
// passphrase. Derivation happens once, at Store construction.
const (
	keyDeriveTime    = 3
	keyDeriveMemory  = 64 * 1024 // 64 MB
	keyDeriveThreads = 4
	keyDeriveLen     = 32
)

// keyDeriveSalt is fixed so the same passphrase always yields the same key.
// Per-record random nonces provide the uniqueness GCM needs.
var keyDeriveSalt = []byte("promptstore.record.v1")

// cryptor encrypts and decrypts serialized records with AES-256-GCM.
// The nonce is prepended to the ciphertext.
type cryptor struct {
	gcm cipher.AEAD
}

// newCryptor derives the key from the passphrase and prepares the AEAD
func newCryptor(passphrase string) (*cryptor, error) {
	key := argon2.IDKey(
		[]byte(passphrase),
		keyDeriveSalt,
		keyDeriveTime,
		keyDeriveMemory,
		keyDeriveThreads,
		keyDeriveLen,
	)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return &cryptor{gcm: gcm}, nil
}

// encrypt seals the plaintext with a fresh random nonce
func (c *cryptor) encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens a sealed payload. A wrong key or corrupted ciphertext
// fails authentication and returns an error.
func (c *cryptor) decrypt(payload []byte) ([]byte, error) {
	nonceSize := c.gcm.NonceSize()
	if len(payload) < nonceSize {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, ciphertext := payload[:nonceSize], payload[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt content: %w", err)
	}
	return plaintext, nil
}

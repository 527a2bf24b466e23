// Package secretcipher provides authenticated symmetric encryption for
// per-bot secrets at rest (AES-256-GCM, nonce prepended to ciphertext).
package secretcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const keyLen = 32

var (
	// ErrInvalidKeyLength is returned by New when the decoded key is not
	// exactly 32 bytes.
	ErrInvalidKeyLength = errors.New("secretcipher: key must be 32 bytes after base64 decoding")
	// ErrCiphertextTooShort is returned by Decrypt when the input cannot
	// possibly contain a nonce.
	ErrCiphertextTooShort = errors.New("secretcipher: ciphertext too short")
	// ErrDecryptionFailed is returned on GCM authentication failure (tag
	// mismatch or corrupted ciphertext).
	ErrDecryptionFailed = errors.New("secretcipher: decryption failed")
)

// Cipher encrypts and decrypts bot secrets with AES-256-GCM. Construction
// failure (bad key) is fatal at startup, never latent.
type Cipher struct {
	gcm cipher.AEAD
}

// New decodes a base64 key and validates its length. Low-entropy keys
// are accepted and New does not report them; LowEntropyWarning returns
// that warning for the caller to log.
func New(keyBase64 string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return nil, fmt.Errorf("secretcipher: invalid base64 key: %w", err)
	}
	if len(key) != keyLen {
		return nil, ErrInvalidKeyLength
	}
	if warning := lowEntropyWarning(key); warning != "" {
		// Intentionally not returned as an error: a low-entropy key is
		// accepted. The caller logs the same text via LowEntropyWarning.
		_ = warning
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretcipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretcipher: %w", err)
	}
	return &Cipher{gcm: gcm}, nil
}

// LowEntropyWarning re-runs the construction-time entropy heuristic and
// returns a human-readable warning, or "" if the key looks acceptable.
// Exposed so callers can log it at startup next to the Cipher itself.
func LowEntropyWarning(keyBase64 string) string {
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return ""
	}
	return lowEntropyWarning(key)
}

func lowEntropyWarning(key []byte) string {
	allSame := true
	for _, b := range key[1:] {
		if b != key[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return "encryption key is a single repeated byte"
	}

	// Crude repetition check: a short period repeated across the whole key.
	for period := 1; period <= len(key)/2; period++ {
		repeated := true
		for i := period; i < len(key); i++ {
			if key[i] != key[i%period] {
				repeated = false
				break
			}
		}
		if repeated {
			return "encryption key is a short repeating pattern"
		}
	}

	lower := strings.ToLower(string(key))
	for _, word := range []string{"password", "secret", "changeme", "letmein"} {
		if strings.Contains(lower, word) {
			return "encryption key contains a dictionary substring"
		}
	}
	return ""
}

// Encrypt produces nonce || ciphertext || tag.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secretcipher: generating nonce: %w", err)
	}
	return c.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt splits nonce || ciphertext || tag and authenticates it.
// Never logs plaintext on success or failure.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := c.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrCiphertextTooShort
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Package cryptoutil seals account secrets stored at rest.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Encryptor seals and opens secrets.
type Encryptor interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

// AESGCMEncryptor implements Encryptor using AES-256-GCM.
type AESGCMEncryptor struct {
	aead cipher.AEAD
}

const (
	// Versioned so a key or algorithm rotation can coexist with old rows.
	cipherPrefixV1 = "v1:"
	noopPrefix     = "noop:"
	keySize        = 32
)

// NewAESGCMEncryptor constructs an AESGCMEncryptor. Key must be 32 bytes.
func NewAESGCMEncryptor(key []byte) (*AESGCMEncryptor, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("aes-gcm key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCMEncryptor{aead: aead}, nil
}

// NewKeyedEncryptor derives an AES-256 key from a configured secret. A 64 char
// hex string is used as-is; anything else is hashed with SHA-256.
func NewKeyedEncryptor(secret string) (*AESGCMEncryptor, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("encryption key is required")
	}
	if decoded, err := hex.DecodeString(secret); err == nil && len(decoded) == keySize {
		return NewAESGCMEncryptor(decoded)
	}
	sum := sha256.Sum256([]byte(secret))
	return NewAESGCMEncryptor(sum[:])
}

// Encrypt seals plaintext under a random nonce as "v1:" + base64(nonce||ciphertext).
func (e *AESGCMEncryptor) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, plaintext, nil)
	return cipherPrefixV1 + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt or by NoopEncryptor.
func (e *AESGCMEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	if strings.HasPrefix(ciphertext, noopPrefix) {
		return NoopEncryptor{}.Decrypt(ciphertext)
	}
	if !strings.HasPrefix(ciphertext, cipherPrefixV1) {
		return nil, fmt.Errorf("unknown ciphertext version (prefix: %s)", shortPrefix(ciphertext))
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext[len(cipherPrefixV1):])
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	return e.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
}

// NoopEncryptor marks values without sealing them. Tests use it.
type NoopEncryptor struct{}

func (NoopEncryptor) Encrypt(plaintext []byte) (string, error) {
	return noopPrefix + base64.StdEncoding.EncodeToString(plaintext), nil
}

func (NoopEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	if !strings.HasPrefix(ciphertext, noopPrefix) {
		return nil, errors.New("invalid noop ciphertext")
	}
	return base64.StdEncoding.DecodeString(ciphertext[len(noopPrefix):])
}

// IsCiphertext reports whether s carries one of the sealed-value prefixes.
// Rows written before a key was configured hold plaintext and return false.
func IsCiphertext(s string) bool {
	return strings.HasPrefix(s, cipherPrefixV1) || strings.HasPrefix(s, noopPrefix)
}

func shortPrefix(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

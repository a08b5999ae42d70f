package data

import (
	"errors"
	"fmt"

	"github.com/uninbox/authd/internal/data/cryptoutil"
)

// secretCodec seals TOTP secrets before they reach the accounts table. With
// no encryptor values pass through unchanged. Plaintext rows written before a
// key was configured stay readable.
type secretCodec struct {
	enc cryptoutil.Encryptor
}

func (c secretCodec) seal(secret string) (string, error) {
	if c.enc == nil || secret == "" {
		return secret, nil
	}
	sealed, err := c.enc.Encrypt([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("seal two-factor secret: %w", err)
	}
	return sealed, nil
}

func (c secretCodec) open(stored string) (string, error) {
	if !cryptoutil.IsCiphertext(stored) {
		return stored, nil
	}
	if c.enc == nil {
		return "", errors.New("two-factor secret is encrypted but no key is configured")
	}
	plain, err := c.enc.Decrypt(stored)
	if err != nil {
		return "", fmt.Errorf("open two-factor secret: %w", err)
	}
	return string(plain), nil
}

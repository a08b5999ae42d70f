package bootstrap

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/uninbox/authd/internal/data/cryptoutil"
)

// CreateSecretEncryptor builds the encryptor for TOTP secrets at rest. The key
// may be 64 hex chars or any passphrase, which is hashed to 32 bytes. An empty
// key returns nil and secrets are stored as given.
//
//nolint:ireturn // callers hold the encryptor behind the interface.
func CreateSecretEncryptor(key string, isDev bool, logger *slog.Logger) (cryptoutil.Encryptor, error) {
	if strings.TrimSpace(key) == "" {
		if !isDev && logger != nil {
			logger.Warn("AUTH_SECRET_KEY is empty, two-factor secrets are stored unencrypted")
		}
		return nil, nil //nolint:nilnil // no key means no encryption
	}

	enc, err := cryptoutil.NewKeyedEncryptor(key)
	if err != nil {
		return nil, fmt.Errorf("create secret encryptor: %w", err)
	}
	return enc, nil
}

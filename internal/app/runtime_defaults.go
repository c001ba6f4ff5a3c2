package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/coursehub/pkg/crypto"
)

const vaultKeyBytes = 32

// ErrJWTSecretMissing is returned when no token secret is configured. Tokens come
// from the platform login front end, so a generated secret would verify nothing.
var ErrJWTSecretMissing = errors.New("auth.jwt.secret must be configured")

// ApplyRuntimeDefaults trims secrets and fills the vault key when the caller
// supplies one from persistent storage (storedVaultKey) or, failing that, a fresh
// random key. It reports which keys were generated so callers can log it.
func ApplyRuntimeDefaults(cfg *Config, storedVaultKey string) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	cfg.Auth.JWT.Secret = strings.TrimSpace(cfg.Auth.JWT.Secret)
	if cfg.Auth.JWT.Secret == "" {
		return nil, ErrJWTSecretMissing
	}

	cfg.Vault.EncryptionKey = strings.TrimSpace(cfg.Vault.EncryptionKey)
	if cfg.Vault.EncryptionKey == "" {
		if stored := strings.TrimSpace(storedVaultKey); stored != "" {
			cfg.Vault.EncryptionKey = stored
		} else {
			key, err := crypto.RandomHex(vaultKeyBytes)
			if err != nil {
				return nil, fmt.Errorf("generate vault encryption key: %w", err)
			}
			cfg.Vault.EncryptionKey = key
			generated["vault.encryption_key"] = true
		}
	}

	return generated, nil
}

package vault

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/coursehub/pkg/crypto"
)

const (
	defaultSaltLength = 16

	// sealedPrefix marks values produced by SecretCipher.Seal. Values without it
	// are treated as plaintext written before encryption was configured.
	sealedPrefix = "vault:v1:"
)

// SecretCipher seals tool shared secrets at rest with an AES-256-GCM key derived
// from the configured master key through Argon2id.
type SecretCipher struct {
	key []byte
}

type cipherConfig struct {
	params crypto.Argon2Parameters
	salt   []byte
}

// Option configures the secret cipher.
type Option func(*cipherConfig)

// WithSalt overrides the salt used for Argon2 key derivation.
func WithSalt(salt []byte) Option {
	cp := append([]byte(nil), salt...)
	return func(cfg *cipherConfig) {
		cfg.salt = cp
	}
}

// WithArgon2Parameters overrides the Argon2 parameters used during key derivation.
func WithArgon2Parameters(params crypto.Argon2Parameters) Option {
	return func(cfg *cipherConfig) {
		cfg.params = params
	}
}

// NewSecretCipher derives the sealing key from masterKey.
func NewSecretCipher(masterKey []byte, opts ...Option) (*SecretCipher, error) {
	if len(masterKey) == 0 {
		return nil, errors.New("vault: master key is required")
	}

	cfg := cipherConfig{params: crypto.DefaultArgon2Params()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(cfg.salt) == 0 {
		sum := sha256.Sum256(masterKey)
		cfg.salt = sum[:defaultSaltLength]
	} else if len(cfg.salt) < defaultSaltLength {
		return nil, fmt.Errorf("vault: salt must be at least %d bytes (got %d)", defaultSaltLength, len(cfg.salt))
	}

	derived, err := crypto.DeriveKeyArgon2id(masterKey, cfg.salt, cfg.params)
	if err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	return &SecretCipher{key: derived}, nil
}

// Seal encrypts a secret for storage.
func (c *SecretCipher) Seal(secret string) (string, error) {
	sealed, err := crypto.Encrypt([]byte(secret), c.key)
	if err != nil {
		return "", fmt.Errorf("vault: seal: %w", err)
	}
	return sealedPrefix + sealed, nil
}

// Open returns the plaintext of a stored secret. Values that were never sealed
// are returned unchanged.
func (c *SecretCipher) Open(stored string) (string, error) {
	payload, ok := strings.CutPrefix(stored, sealedPrefix)
	if !ok {
		return stored, nil
	}
	plain, err := crypto.Decrypt(payload, c.key)
	if err != nil {
		return "", fmt.Errorf("vault: open: %w", err)
	}
	return string(plain), nil
}

// IsSealed reports whether a stored value was produced by Seal.
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, sealedPrefix)
}

package crypto

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sealed, err := Encrypt([]byte("shared-secret"), testKey())
	require.NoError(t, err)
	require.NotContains(t, sealed, "shared-secret")

	plain, err := Decrypt(sealed, testKey())
	require.NoError(t, err)
	require.Equal(t, "shared-secret", string(plain))
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	a, err := Encrypt([]byte("same"), testKey())
	require.NoError(t, err)
	b, err := Encrypt([]byte("same"), testKey())
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestDecryptRejectsTamperingAndShortInput(t *testing.T) {
	sealed, err := Encrypt([]byte("payload"), testKey())
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	_, err = Decrypt(base64.StdEncoding.EncodeToString(raw), testKey())
	require.Error(t, err)

	_, err = Decrypt(base64.StdEncoding.EncodeToString([]byte("abc")), testKey())
	require.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestRandomHex(t *testing.T) {
	a, err := RandomHex(16)
	require.NoError(t, err)
	require.Len(t, a, 32)

	b, err := RandomHex(0)
	require.NoError(t, err)
	require.Len(t, b, 32)
	require.NotEqual(t, a, b)
}

func TestDeriveKeyArgon2id(t *testing.T) {
	params := Argon2Parameters{Time: 1, Memory: 64, Threads: 1, KeyLength: 32}
	salt := bytes.Repeat([]byte{0xA5}, 16)

	k1, err := DeriveKeyArgon2id([]byte("master"), salt, params)
	require.NoError(t, err)
	k2, err := DeriveKeyArgon2id([]byte("master"), salt, params)
	require.NoError(t, err)
	require.Equal(t, k1, k2)
	require.Len(t, k1, 32)

	_, err = DeriveKeyArgon2id([]byte("master"), []byte("short"), params)
	require.Error(t, err)

	params.KeyLength = 20
	require.Error(t, params.Validate())
	require.NoError(t, DefaultArgon2Params().Validate())
}

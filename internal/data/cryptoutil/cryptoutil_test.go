package cryptoutil

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestAESGCMEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewAESGCMEncryptor(testKey())
	require.NoError(t, err)

	secret := []byte("JBSWY3DPEHPK3PXP")
	sealed, err := enc.Encrypt(secret)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1:"))
	assert.NotContains(t, sealed, string(secret))
	assert.True(t, IsCiphertext(sealed))

	// Fresh nonce per call.
	again, err := enc.Encrypt(secret)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, secret, opened)
}

func TestAESGCMEncryptor_WrongKey(t *testing.T) {
	enc, err := NewAESGCMEncryptor(testKey())
	require.NoError(t, err)
	sealed, err := enc.Encrypt([]byte("secret"))
	require.NoError(t, err)

	other, err := NewAESGCMEncryptor(make([]byte, 32))
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	require.Error(t, err)
}

func TestAESGCMEncryptor_OpensNoopValues(t *testing.T) {
	enc, err := NewAESGCMEncryptor(testKey())
	require.NoError(t, err)

	legacy := noopPrefix + base64.StdEncoding.EncodeToString([]byte("legacy"))
	opened, err := enc.Decrypt(legacy)
	require.NoError(t, err)
	assert.Equal(t, []byte("legacy"), opened)
}

func TestAESGCMEncryptor_InvalidKey(t *testing.T) {
	_, err := NewAESGCMEncryptor([]byte("short"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 32 bytes")

	_, err = NewAESGCMEncryptor(make([]byte, 64))
	require.Error(t, err)
}

func TestAESGCMEncryptor_InvalidCiphertext(t *testing.T) {
	enc, err := NewAESGCMEncryptor(testKey())
	require.NoError(t, err)

	_, err = enc.Decrypt("v2:somedata")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ciphertext version")

	_, err = enc.Decrypt("v1:!!!invalid!!!")
	require.Error(t, err)

	_, err = enc.Decrypt("v1:" + base64.StdEncoding.EncodeToString([]byte("x")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ciphertext too short")
}

func TestNewKeyedEncryptor(t *testing.T) {
	_, err := NewKeyedEncryptor("  ")
	require.Error(t, err)

	hexKey := strings.Repeat("ab", 32)
	fromHex, err := NewKeyedEncryptor(hexKey)
	require.NoError(t, err)
	sealed, err := fromHex.Encrypt([]byte("x"))
	require.NoError(t, err)

	// The same hex key decodes to the same AES key.
	again, err := NewKeyedEncryptor(hexKey)
	require.NoError(t, err)
	opened, err := again.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), opened)

	passphrase, err := NewKeyedEncryptor("correct horse battery staple")
	require.NoError(t, err)
	_, err = passphrase.Decrypt(sealed)
	require.Error(t, err)
}

func TestNoopEncryptor(t *testing.T) {
	enc := NoopEncryptor{}

	sealed, err := enc.Encrypt([]byte("test value"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "noop:"))
	assert.True(t, IsCiphertext(sealed))

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("test value"), opened)

	_, err = enc.Decrypt("v1:somedata")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid noop ciphertext")
}

func TestIsCiphertext(t *testing.T) {
	assert.False(t, IsCiphertext(""))
	assert.False(t, IsCiphertext("JBSWY3DPEHPK3PXP"))
	assert.True(t, IsCiphertext("v1:abc"))
}

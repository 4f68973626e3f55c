package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaultRoundTrip(t *testing.T) {
	vault, err := NewVault("test-master-secret")
	require.NoError(t, err)

	ciphertext, err := vault.Encrypt("ya29.access-token-value")
	require.NoError(t, err)
	assert.NotContains(t, ciphertext, "ya29")

	plaintext, err := vault.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "ya29.access-token-value", plaintext)
}

func TestVaultEncryptIsNonDeterministic(t *testing.T) {
	vault, err := NewVault("test-master-secret")
	require.NoError(t, err)

	a, err := vault.Encrypt("same-token")
	require.NoError(t, err)
	b, err := vault.Encrypt("same-token")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVaultDecryptRejectsTamperedCiphertext(t *testing.T) {
	vault, err := NewVault("test-master-secret")
	require.NoError(t, err)

	ciphertext, err := vault.Encrypt("refresh-token")
	require.NoError(t, err)

	flipped := byte('A')
	if ciphertext[0] == 'A' {
		flipped = 'B'
	}
	tampered := string(flipped) + ciphertext[1:]
	_, err = vault.Decrypt(tampered)
	assert.Error(t, err)

	_, err = vault.Decrypt("not-base64!!!")
	assert.Error(t, err)
}

func TestVaultDecryptRejectsWrongKey(t *testing.T) {
	a, err := NewVault("secret-a")
	require.NoError(t, err)
	b, err := NewVault("secret-b")
	require.NoError(t, err)

	ciphertext, err := a.Encrypt("token")
	require.NoError(t, err)

	_, err = b.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestNewVaultRequiresSecret(t *testing.T) {
	_, err := NewVault("")
	assert.Error(t, err)
}

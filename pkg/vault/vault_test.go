package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestNew_KeyLength(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{
			name:    "exact length key",
			key:     testKey,
			wantErr: false,
		},
		{
			name:    "longer key is truncated",
			key:     testKey + "extra",
			wantErr: false,
		},
		{
			name:    "short key rejected",
			key:     "too-short",
			wantErr: true,
		},
		{
			name:    "empty key rejected",
			key:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := New(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, v)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, v)
			}
		})
	}
}

func TestVault_RoundTrip(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	plaintexts := []string{
		"secret-api-key",
		"pit-0123456789abcdef0123456789abcdef",
		strings.Repeat("x", 4096),
		"unicode ✓ value",
	}

	for _, plaintext := range plaintexts {
		ciphertext, err := v.Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, ciphertext)

		got, err := v.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestVault_EmptyMarker(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	ciphertext, err := v.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", ciphertext)

	plaintext, err := v.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", plaintext)
}

func TestVault_EncryptIsNonDeterministic(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	first, err := v.Encrypt("same value")
	require.NoError(t, err)
	second, err := v.Encrypt("same value")
	require.NoError(t, err)

	// fresh nonce per call
	assert.NotEqual(t, first, second)
}

func TestVault_DecryptErrors(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	_, err = v.Decrypt("not base64!!!")
	assert.Error(t, err)

	_, err = v.Decrypt("c2hvcnQ=")
	assert.Error(t, err)

	// valid ciphertext under a different key fails to open
	other, err := New("ffffffffffffffffffffffffffffffff")
	require.NoError(t, err)
	ciphertext, err := other.Encrypt("secret")
	require.NoError(t, err)

	_, err = v.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestVault_DecryptPtr(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	got, err := v.DecryptPtr(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	ciphertext, err := v.Encrypt("token")
	require.NoError(t, err)

	got, err = v.DecryptPtr(&ciphertext)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "token", *got)
}

// Package vault encrypts per-tenant secret fields at rest.
//
// The codec is invoked at the persistence boundary: callers encrypt before
// writing a secret column and decrypt after reading one. Ciphertext is
// base64(nonce || AES-256-GCM sealed plaintext).
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// KeyLength is the required symmetric key length in bytes
const KeyLength = 32

// Vault is a symmetric field codec keyed once at process start
type Vault struct {
	aead cipher.AEAD
}

// New creates a vault from the configured key. Keys shorter than KeyLength are
// rejected outright rather than padded; longer keys are truncated to KeyLength.
func New(key string) (*Vault, error) {
	if len(key) < KeyLength {
		return nil, fmt.Errorf("vault key must be at least %d bytes, got %d", KeyLength, len(key))
	}

	block, err := aes.NewCipher([]byte(key)[:KeyLength])
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gcm: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals a plaintext secret. An empty plaintext maps to the empty
// marker, not an encrypted empty string, so absent secrets stay absent.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed secret. The empty marker decrypts to the empty string
// without touching the cipher.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("ciphertext is not valid base64: %w", err)
	}

	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("ciphertext too short: %d bytes", len(raw))
	}

	plaintext, err := v.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// DecryptPtr decrypts a nullable secret column, mapping nil to nil
func (v *Vault) DecryptPtr(ciphertext *string) (*string, error) {
	if ciphertext == nil {
		return nil, nil
	}

	plaintext, err := v.Decrypt(*ciphertext)
	if err != nil {
		return nil, err
	}

	return &plaintext, nil
}

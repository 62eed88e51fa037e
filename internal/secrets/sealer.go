package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required key length (AES-256).
const KeySize = 32

// ErrDecrypt is returned when no configured key opens a ciphertext.
var ErrDecrypt = errors.New("decryption failed with all available keys")

// Sealer encrypts with AES-GCM under an active key and decrypts with the
// active key or any fallback key, which enables zero-downtime key rotation.
type Sealer struct {
	active   []byte
	fallback [][]byte
}

// NewSealer validates key sizes and returns a Sealer.
func NewSealer(active []byte, fallback ...[]byte) (*Sealer, error) {
	if len(active) != KeySize {
		return nil, fmt.Errorf("active key must be %d bytes (AES-256), got %d", KeySize, len(active))
	}
	for i, k := range fallback {
		if len(k) != KeySize {
			return nil, fmt.Errorf("fallback key %d must be %d bytes, got %d", i, KeySize, len(k))
		}
	}
	return &Sealer{active: active, fallback: fallback}, nil
}

// Seal encrypts plaintext; the nonce is prepended to the result.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	return s.SealWithContext(plaintext, nil)
}

// SealWithContext encrypts plaintext bound to aad. The same aad must be
// given to OpenWithContext; a ciphertext moved to another context fails to open.
func (s *Sealer) SealWithContext(plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(s.active)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts with the active key first, then each fallback in order.
func (s *Sealer) Open(ciphertext []byte) ([]byte, error) {
	return s.OpenWithContext(ciphertext, nil)
}

// OpenWithContext reverses SealWithContext.
func (s *Sealer) OpenWithContext(ciphertext, aad []byte) ([]byte, error) {
	if plain, err := open(ciphertext, s.active, aad); err == nil {
		return plain, nil
	}
	for _, key := range s.fallback {
		if plain, err := open(ciphertext, key, aad); err == nil {
			return plain, nil
		}
	}
	return nil, ErrDecrypt
}

// SealString is Seal with base64 output, for text columns and config files.
func (s *Sealer) SealString(plaintext []byte) (string, error) {
	ct, err := s.Seal(plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// OpenString reverses SealString.
func (s *Sealer) OpenString(encoded string) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	return s.Open(ct)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func open(ciphertext, key, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, aad)
}

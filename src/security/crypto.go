package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var (
	ErrSealedValueInvalid = errors.New("sealed value is invalid")
	ErrSecretsKeyMissing  = errors.New("WALLET_SECRETS_KEY is not set")
)

// Sealer encrypts wallet secrets at rest with NaCl secretbox.
type Sealer struct {
	key [32]byte
}

// NewSealer builds a Sealer from a base64 encoded 32 byte key.
func NewSealer(encodedKey string) (*Sealer, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode secrets key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secrets key must be 32 bytes, got %d", len(raw))
	}

	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

// NewSealerFromEnv builds a Sealer from WALLET_SECRETS_KEY and fails when it is unset.
func NewSealerFromEnv() (*Sealer, error) {
	key := GetConfig().WalletSecretsKey
	if key == "" {
		return nil, ErrSecretsKeyMissing
	}
	return NewSealer(key)
}

// EncryptString seals plaintext and returns nonce||box as base64.
func (s *Sealer) EncryptString(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a value produced by EncryptString.
func (s *Sealer) DecryptString(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedValueInvalid, err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrSealedValueInvalid
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	opened, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrSealedValueInvalid
	}
	return string(opened), nil
}

// Package secrets seals and opens integration credentials at rest.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var (
	ErrNoKey   = errors.New("secrets key not configured")
	ErrBadKey  = errors.New("secrets key must be 32 bytes, base64 encoded")
	ErrDecrypt = errors.New("credential decryption failed")
)

// Vault holds the symmetric key. A zero Vault refuses every operation.
type Vault struct {
	key *[keySize]byte
}

// NewVault decodes a base64 (std or raw-url) key.
// An empty key yields a Vault whose Open and Seal return ErrNoKey.
func NewVault(b64 string) (*Vault, error) {
	b64 = strings.TrimSpace(b64)
	if b64 == "" {
		return &Vault{}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(b64)
	}
	if err != nil || len(raw) != keySize {
		return nil, ErrBadKey
	}
	var k [keySize]byte
	copy(k[:], raw)
	return &Vault{key: &k}, nil
}

// Seal encrypts plaintext as nonce||box.
func (v *Vault) Seal(plaintext []byte) ([]byte, error) {
	if v == nil || v.key == nil {
		return nil, ErrNoKey
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, v.key), nil
}

// Open decrypts a blob produced by Seal.
func (v *Vault) Open(sealed []byte) ([]byte, error) {
	if v == nil || v.key == nil {
		return nil, ErrNoKey
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, v.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return out, nil
}

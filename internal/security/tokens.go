package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize    = 24
	sealedPrefix = "sb1:"
)

var ErrDecrypt = errors.New("security: cannot decrypt token")

// TokenCipher seals shop access tokens at rest. With an empty key it stores
// tokens as given, which is what local development uses.
type TokenCipher struct {
	key     *[32]byte
	enabled bool
}

func NewTokenCipher(secret string) *TokenCipher {
	if secret == "" {
		return &TokenCipher{}
	}
	k := sha256.Sum256([]byte(secret))
	return &TokenCipher{key: &k, enabled: true}
}

func (c *TokenCipher) Enabled() bool { return c.enabled }

func (c *TokenCipher) Encrypt(plain string) (string, error) {
	if !c.enabled || plain == "" {
		return plain, nil
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, c.key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed token. Values without the sealed prefix are
// returned unchanged so tokens stored before a key was configured still work.
func (c *TokenCipher) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if !c.enabled {
		return "", ErrDecrypt
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, c.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of an application key in bytes.
const KeySize = 32

const (
	version  = "v1"
	hkdfInfo = "notifykit/secrets/v1"
)

var encoding = base64.RawURLEncoding

// Box seals values with AES-256-GCM under keys derived from one application
// key. Each value is bound to a scope and a field name: opening it with a
// different scope or field fails.
type Box struct {
	appKey []byte
}

// NewBox copies appKey, which must be KeySize bytes.
func NewBox(appKey []byte) (*Box, error) {
	if len(appKey) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidAppKey, len(appKey))
	}
	return &Box{appKey: append([]byte(nil), appKey...)}, nil
}

// Scope joins stable identifiers into the scope a value is sealed under.
// The same parts always give the same scope.
func Scope(parts ...string) []byte {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return sum[:]
}

// Seal encrypts plaintext and returns a printable token of the form
// "v1.<base64url(nonce|ciphertext)>".
func (b *Box) Seal(scope []byte, field string, plaintext []byte) (string, error) {
	aead, err := b.aead(scope)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, []byte(field))
	return version + "." + encoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (b *Box) Open(scope []byte, field, token string) ([]byte, error) {
	ver, body, ok := strings.Cut(token, ".")
	if !ok {
		return nil, ErrInvalidCiphertext
	}
	if ver != version {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, ver)
	}
	raw, err := encoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCiphertext, err)
	}

	aead, err := b.aead(scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(field))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	return plain, nil
}

// IsSealed reports whether s looks like a token produced by Seal.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, version+".")
}

func (b *Box) aead(scope []byte) (cipher.AEAD, error) {
	if len(scope) == 0 {
		return nil, ErrEmptyScope
	}
	key := make([]byte, KeySize)
	defer clear(key)
	if _, err := io.ReadFull(hkdf.New(sha256.New, b.appKey, scope, []byte(hkdfInfo)), key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

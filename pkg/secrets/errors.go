package secrets

import "errors"

var (
	ErrInvalidAppKey      = errors.New("secrets: app key must be 32 bytes")
	ErrInvalidKeyEncoding = errors.New("secrets: expected 32 bytes as base64 or hex")
	ErrEmptyScope         = errors.New("secrets: empty scope")

	ErrEncryptionFailed   = errors.New("secrets: encryption failed")
	ErrDecryptionFailed   = errors.New("secrets: decryption failed")
	ErrInvalidCiphertext  = errors.New("secrets: malformed ciphertext")
	ErrUnsupportedVersion = errors.New("secrets: unsupported ciphertext version")
)

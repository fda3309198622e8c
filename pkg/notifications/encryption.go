package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/secrets"
)

const (
	encryptedDataPrefix = "data."
	sensitiveMask       = "[SENSITIVE_DATA_HIDDEN]"
)

// DefaultSensitiveKeys are matched case-insensitively as substrings of Data keys.
var DefaultSensitiveKeys = []string{
	"ssn", "socialSecurityNumber", "taxId", "nationalId", "phoneNumber", "email",
	"address", "emergencyContact", "medicalHistory", "diagnosis", "medication",
	"notes", "sessionNotes", "observations", "personalNotes",
}

// EncryptionGate protects the sensitive subset of a notification at rest.
type EncryptionGate interface {
	Encrypt(ctx context.Context, n Notification) (Notification, error)
	Decrypt(ctx context.Context, n Notification) (Notification, error)
}

// SecretsGate encrypts sensitive Data values with AES-256-GCM. Keys are
// derived from the application key and the recipient and notification IDs,
// so nothing besides the application key has to be stored.
type SecretsGate struct {
	box       *secrets.Box
	sensitive []string
}

// GateOption configures a SecretsGate.
type GateOption func(*SecretsGate)

// WithSensitiveKeys replaces the list of sensitive Data key fragments.
func WithSensitiveKeys(keys ...string) GateOption {
	return func(g *SecretsGate) {
		g.sensitive = normalizeKeys(keys)
	}
}

// NewSecretsGate validates the 32-byte application key.
func NewSecretsGate(appKey []byte, opts ...GateOption) (*SecretsGate, error) {
	box, err := secrets.NewBox(appKey)
	if err != nil {
		return nil, err
	}
	g := &SecretsGate{
		box:       box,
		sensitive: normalizeKeys(DefaultSensitiveKeys),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// IsSensitive reports whether a Data key holds sensitive content.
func (g *SecretsGate) IsSensitive(key string) bool {
	return matchesSensitive(g.sensitive, key)
}

// Encrypt returns a copy of n with its sensitive Data values replaced by
// ciphertext. n.ID must already be assigned.
func (g *SecretsGate) Encrypt(_ context.Context, n Notification) (Notification, error) {
	if n.IsEncrypted() {
		return n, nil
	}
	if n.ID == "" || n.RecipientID == "" {
		return n, fmt.Errorf("%w: id and recipient are required", ErrEncryption)
	}

	out := n.Clone()
	scope := secrets.Scope(n.RecipientID, n.ID)
	var fields []string
	for k, v := range n.Data {
		if !g.IsSensitive(k) {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return n, fmt.Errorf("%w: encode %s: %w", ErrEncryption, k, err)
		}
		field := encryptedDataPrefix + k
		ct, err := g.box.Seal(scope, field, raw)
		if err != nil {
			return n, errors.Join(ErrEncryption, err)
		}
		out.Data[k] = ct
		fields = append(fields, field)
	}
	if len(fields) == 0 {
		return out, nil
	}

	sort.Strings(fields)
	out.EncryptionKeyID = n.ID
	out.EncryptedFields = fields
	return out, nil
}

// Decrypt reverses Encrypt. On failure n is returned unchanged with an
// error wrapping ErrDecryption.
func (g *SecretsGate) Decrypt(_ context.Context, n Notification) (Notification, error) {
	if !n.IsEncrypted() {
		return n, nil
	}

	out := n.Clone()
	scope := secrets.Scope(n.RecipientID, n.EncryptionKeyID)
	for _, field := range n.EncryptedFields {
		key, ok := strings.CutPrefix(field, encryptedDataPrefix)
		if !ok {
			return n, fmt.Errorf("%w: unknown field %s", ErrDecryption, field)
		}
		ct, ok := n.Data[key].(string)
		if !ok {
			return n, fmt.Errorf("%w: %s is not ciphertext", ErrDecryption, field)
		}
		plain, err := g.box.Open(scope, field, ct)
		if err != nil {
			return n, errors.Join(ErrDecryption, err)
		}
		var v any
		if err := json.Unmarshal(plain, &v); err != nil {
			return n, errors.Join(ErrDecryption, err)
		}
		out.Data[key] = v
	}

	out.EncryptionKeyID = ""
	out.EncryptedFields = nil
	return out, nil
}

// Sanitize returns a copy of n safe for logs, with sensitive Data values masked.
func Sanitize(n Notification) Notification {
	out := n.Clone()
	keys := normalizeKeys(DefaultSensitiveKeys)
	for k := range out.Data {
		if matchesSensitive(keys, k) {
			out.Data[k] = sensitiveMask
		}
	}
	return out
}

func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func matchesSensitive(fragments []string, key string) bool {
	key = strings.ToLower(key)
	for _, f := range fragments {
		if strings.Contains(key, f) {
			return true
		}
	}
	return false
}

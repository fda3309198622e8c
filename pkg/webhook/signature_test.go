package webhook_test

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

func TestSignAndVerify(t *testing.T) {
	t.Parallel()

	const secret = "whsec_test"
	body := []byte(`{"event":"notification.message","notification":{"id":"n1"}}`)
	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	h := webhook.SignatureHeaders(secret, body, at)

	require.NotEmpty(t, h.Get(webhook.HeaderID))
	require.Equal(t, strconv.FormatInt(at.Unix(), 10), h.Get(webhook.HeaderTimestamp))
	require.Equal(t, webhook.Sign(secret, body, at), h.Get(webhook.HeaderSignature))
	require.Len(t, h.Get(webhook.HeaderSignature), 64)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		header    func() http.Header
		now       time.Time
		tolerance time.Duration
		ok        bool
	}{
		{name: "valid", secret: secret, body: body, header: func() http.Header { return h.Clone() }, now: at.Add(time.Minute), tolerance: 5 * time.Minute, ok: true},
		{name: "no tolerance ignores age", secret: secret, body: body, header: func() http.Header { return h.Clone() }, now: at.Add(48 * time.Hour), ok: true},
		{name: "wrong secret", secret: "other", body: body, header: func() http.Header { return h.Clone() }, now: at},
		{name: "tampered body", secret: secret, body: []byte(`{"event":"x"}`), header: func() http.Header { return h.Clone() }, now: at},
		{name: "too old", secret: secret, body: body, header: func() http.Header { return h.Clone() }, now: at.Add(10 * time.Minute), tolerance: 5 * time.Minute},
		{name: "from the future", secret: secret, body: body, header: func() http.Header { return h.Clone() }, now: at.Add(-10 * time.Minute), tolerance: 5 * time.Minute},
		{
			name: "missing signature", secret: secret, body: body, now: at,
			header: func() http.Header { c := h.Clone(); c.Del(webhook.HeaderSignature); return c },
		},
		{
			name: "bad timestamp", secret: secret, body: body, now: at,
			header: func() http.Header { c := h.Clone(); c.Set(webhook.HeaderTimestamp, "yesterday"); return c },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := webhook.Verify(tt.secret, tt.body, tt.header(), tt.now, tt.tolerance)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, webhook.ErrInvalidSignature)
		})
	}
}

func TestSignatureHeaders_UniqueIDs(t *testing.T) {
	t.Parallel()

	at := time.Now()
	a := webhook.SignatureHeaders("s", []byte("{}"), at)
	b := webhook.SignatureHeaders("s", []byte("{}"), at)
	assert.NotEqual(t, a.Get(webhook.HeaderID), b.Get(webhook.HeaderID))
	assert.Equal(t, a.Get(webhook.HeaderSignature), b.Get(webhook.HeaderSignature))
}

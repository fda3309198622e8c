package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderID        = "X-Webhook-ID"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderSignature = "X-Webhook-Signature"
)

// Sign returns the hex HMAC-SHA256 of "<unix ts>.<payload>".
func Sign(secret string, payload []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(at.Unix(), 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaders builds the signature headers for one delivery.
func SignatureHeaders(secret string, payload []byte, at time.Time) http.Header {
	h := make(http.Header, 3)
	h.Set(HeaderID, uuid.NewString())
	h.Set(HeaderTimestamp, strconv.FormatInt(at.Unix(), 10))
	h.Set(HeaderSignature, Sign(secret, payload, at))
	return h
}

// Verify checks a signed request. A positive tolerance also rejects
// timestamps further than tolerance from now in either direction.
func Verify(secret string, payload []byte, h http.Header, now time.Time, tolerance time.Duration) error {
	sig := h.Get(HeaderSignature)
	raw := h.Get(HeaderTimestamp)
	if sig == "" || raw == "" {
		return fmt.Errorf("%w: missing signature headers", ErrInvalidSignature)
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrInvalidSignature, raw)
	}

	at := time.Unix(ts, 0)
	if tolerance > 0 {
		if skew := now.Sub(at); skew > tolerance || skew < -tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance (%s)", ErrInvalidSignature, skew)
		}
	}

	if !hmac.Equal([]byte(Sign(secret, payload, at)), []byte(sig)) {
		return fmt.Errorf("%w: mismatch", ErrInvalidSignature)
	}
	return nil
}

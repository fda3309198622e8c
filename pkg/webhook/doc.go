// Package webhook posts signed JSON events to HTTP endpoints.
//
// Sender marshals the payload once, signs it when a secret is configured and
// POSTs it, retrying transient failures with backoff. Responses in the 4xx
// range other than 408, 425 and 429 are permanent: they are returned at once
// wrapped in ErrPermanentFailure. A CircuitBreaker shared across sends stops
// traffic to an endpoint that keeps failing.
//
//	sender := webhook.NewSender()
//	defer sender.Close()
//
//	err := sender.Send(ctx, endpoint, event,
//	    webhook.WithSignature(secret),
//	    webhook.WithMaxRetries(2),
//	    webhook.WithCircuitBreaker(breaker),
//	)
//
// # Signatures
//
// Signed requests carry X-Webhook-ID, X-Webhook-Timestamp (unix seconds) and
// X-Webhook-Signature, the hex HMAC-SHA256 of "<timestamp>.<body>". Receivers
// check them with Verify:
//
//	if err := webhook.Verify(secret, body, r.Header, time.Now(), 5*time.Minute); err != nil {
//	    http.Error(w, "bad signature", http.StatusUnauthorized)
//	    return
//	}
package webhook

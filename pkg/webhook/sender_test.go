package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

type received struct {
	header http.Header
	body   []byte
}

// endpoint answers with statuses in order, repeating the last one.
func endpoint(t *testing.T, statuses ...int) (*httptest.Server, func() []received) {
	t.Helper()

	var (
		mu    sync.Mutex
		calls []received
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, received{header: r.Header.Clone(), body: body})
		n := len(calls)
		mu.Unlock()

		status := statuses[min(n, len(statuses))-1]
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = w.Write([]byte("endpoint\nsays no"))
		}
	}))
	t.Cleanup(srv.Close)

	return srv, func() []received {
		mu.Lock()
		defer mu.Unlock()
		return append([]received(nil), calls...)
	}
}

func newSender(t *testing.T) *webhook.Sender {
	t.Helper()
	s := webhook.NewSender()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var fastRetry = webhook.WithBackoff(webhook.ConstantBackoff(time.Millisecond))

type event struct {
	Event string `json:"event"`
	ID    string `json:"id"`
}

func TestSender_Send(t *testing.T) {
	t.Parallel()

	srv, calls := endpoint(t, http.StatusAccepted)
	s := newSender(t)

	err := s.Send(context.Background(), srv.URL, event{Event: "notification.alert", ID: "n1"},
		webhook.WithSignature("whsec"),
		webhook.WithHeader("X-Notification-ID", "n1"),
	)
	require.NoError(t, err)

	got := calls()
	require.Len(t, got, 1)
	h := got[0].header
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, webhook.DefaultUserAgent, h.Get("User-Agent"))
	assert.Equal(t, "n1", h.Get("X-Notification-ID"))
	assert.NoError(t, webhook.Verify("whsec", got[0].body, h, time.Now(), time.Minute))

	var decoded event
	require.NoError(t, json.Unmarshal(got[0].body, &decoded))
	assert.Equal(t, event{Event: "notification.alert", ID: "n1"}, decoded)
}

func TestSender_Retries(t *testing.T) {
	t.Parallel()

	t.Run("transient failures are retried", func(t *testing.T) {
		t.Parallel()

		srv, calls := endpoint(t, http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusOK)
		var attempts []webhook.Attempt
		err := newSender(t).Send(context.Background(), srv.URL, event{ID: "n1"},
			webhook.WithMaxRetries(3), fastRetry,
			webhook.WithOnAttempt(func(a webhook.Attempt) { attempts = append(attempts, a) }),
		)
		require.NoError(t, err)
		assert.Len(t, calls(), 3)
		require.Len(t, attempts, 3)
		assert.Equal(t, http.StatusServiceUnavailable, attempts[0].StatusCode)
		assert.Error(t, attempts[0].Err)
		assert.Equal(t, 3, attempts[2].Number)
		assert.NoError(t, attempts[2].Err)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		t.Parallel()

		srv, calls := endpoint(t, http.StatusBadGateway)
		err := newSender(t).Send(context.Background(), srv.URL, event{}, webhook.WithMaxRetries(2), fastRetry)
		require.ErrorIs(t, err, webhook.ErrDeliveryFailed)
		assert.NotErrorIs(t, err, webhook.ErrPermanentFailure)
		assert.Len(t, calls(), 3)

		var se *webhook.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadGateway, se.Code)
		assert.Equal(t, "endpoint says no", se.Body)
	})

	t.Run("client errors are permanent", func(t *testing.T) {
		t.Parallel()

		srv, calls := endpoint(t, http.StatusGone)
		err := newSender(t).Send(context.Background(), srv.URL, event{}, webhook.WithMaxRetries(5), fastRetry)
		assert.ErrorIs(t, err, webhook.ErrPermanentFailure)
		assert.Len(t, calls(), 1)
	})

	t.Run("no retry sends once", func(t *testing.T) {
		t.Parallel()

		srv, calls := endpoint(t, http.StatusInternalServerError)
		err := newSender(t).Send(context.Background(), srv.URL, event{}, webhook.WithNoRetry())
		assert.ErrorIs(t, err, webhook.ErrDeliveryFailed)
		assert.Len(t, calls(), 1)
	})

	t.Run("cancelled during backoff", func(t *testing.T) {
		t.Parallel()

		srv, calls := endpoint(t, http.StatusServiceUnavailable)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := newSender(t).Send(ctx, srv.URL, event{},
			webhook.WithMaxRetries(3), webhook.WithBackoff(webhook.ConstantBackoff(time.Hour)))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Len(t, calls(), 1)
	})
}

func TestSender_CircuitBreaker(t *testing.T) {
	t.Parallel()

	srv, calls := endpoint(t, http.StatusServiceUnavailable)
	s := newSender(t)
	breaker := webhook.NewCircuitBreaker(2, 1, time.Hour)

	for range 2 {
		err := s.Send(context.Background(), srv.URL, event{}, webhook.WithNoRetry(), webhook.WithCircuitBreaker(breaker))
		require.ErrorIs(t, err, webhook.ErrDeliveryFailed)
	}
	assert.Equal(t, webhook.CircuitOpen, breaker.State())

	err := s.Send(context.Background(), srv.URL, event{}, webhook.WithNoRetry(), webhook.WithCircuitBreaker(breaker))
	assert.ErrorIs(t, err, webhook.ErrCircuitOpen)
	assert.Len(t, calls(), 2, "open breaker sends nothing")
}

func TestSender_Validation(t *testing.T) {
	t.Parallel()

	s := newSender(t)
	for _, u := range []string{"", "ftp://example.com/hook", "http://", "://bad"} {
		err := s.Send(context.Background(), u, event{})
		assert.ErrorIs(t, err, webhook.ErrInvalidURL, u)
	}

	err := s.Send(context.Background(), "https://example.com/hook", map[string]any{"bad": make(chan int)})
	assert.ErrorIs(t, err, webhook.ErrInvalidPayload)
}

func TestSender_Timeout(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	err := newSender(t).Send(context.Background(), srv.URL, event{},
		webhook.WithNoRetry(), webhook.WithTimeout(20*time.Millisecond))
	assert.ErrorIs(t, err, webhook.ErrDeliveryFailed)
	assert.Equal(t, int32(1), hits.Load())
}

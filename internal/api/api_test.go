package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/internal/api"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Meta  map[string]any   `json:"meta"`
	Error *api.ErrorDetail `json:"error"`
}

func newHandler(t *testing.T, opts ...api.Option) http.Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := notifications.NewService(notifications.NewMemoryStorage(), notifications.WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return api.New(svc, append([]api.Option{api.WithLogger(log)}, opts...)...).Routes()
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

const createBody = `{"notification":{"recipientId":"user_1","type":"message","title":"New message","body":"Hi"}}`

func create(t *testing.T, h http.Handler) notifications.Notification {
	t.Helper()
	rec, env := do(t, h, http.MethodPost, "/v1/notifications", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[notifications.Notification](t, env)
}

func TestCreateNotification(t *testing.T) {
	t.Parallel()

	t.Run("created", func(t *testing.T) {
		t.Parallel()
		h := newHandler(t)

		n := create(t, h)
		assert.NotEmpty(t, n.ID)
		assert.Equal(t, "user_1", n.RecipientID)
		assert.Equal(t, notifications.StatusSent, n.Status)
	})

	t.Run("validation details", func(t *testing.T) {
		t.Parallel()
		h := newHandler(t)

		rec, env := do(t, h, http.MethodPost, "/v1/notifications", `{"notification":{"type":"message"}}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "validation_failed", env.Error.Code)
		assert.Contains(t, env.Error.Details, "recipientId")
		assert.Contains(t, env.Error.Details, "title")
		assert.NotEmpty(t, env.Error.RequestID)
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		h := newHandler(t)

		rec, env := do(t, h, http.MethodPost, "/v1/notifications", `{"notification":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "bad_request", env.Error.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		t.Parallel()
		h := newHandler(t)

		rec, _ := do(t, h, http.MethodPost, "/v1/notifications", `{"notification":{},"bogus":true}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown template", func(t *testing.T) {
		t.Parallel()
		h := newHandler(t)

		rec, env := do(t, h, http.MethodPost, "/v1/notifications",
			`{"notification":{"recipientId":"user_1","template":"no_such_template"}}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "template_not_found", env.Error.Code)
	})
}

func TestNotificationLifecycle(t *testing.T) {
	t.Parallel()
	h := newHandler(t)
	n := create(t, h)

	rec, env := do(t, h, http.MethodGet, "/v1/notifications/"+n.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, n.ID, decodeData[notifications.Notification](t, env).ID)

	rec, env = do(t, h, http.MethodPost, "/v1/notifications/"+n.ID+"/read", "")
	require.Equal(t, http.StatusOK, rec.Code)
	read := decodeData[notifications.Notification](t, env)
	assert.Equal(t, notifications.StatusRead, read.Status)
	assert.NotNil(t, read.ReadAt)

	rec, env = do(t, h, http.MethodPost, "/v1/notifications/"+n.ID+"/dismiss", `{"reason":"done"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "read is terminal")
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_transition", env.Error.Code)

	rec, _ = do(t, h, http.MethodDelete, "/v1/notifications/"+n.ID+"?reason=cleanup", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = do(t, h, http.MethodGet, "/v1/notifications/"+n.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestDismiss(t *testing.T) {
	t.Parallel()
	h := newHandler(t)
	n := create(t, h)

	rec, env := do(t, h, http.MethodPost, "/v1/notifications/"+n.ID+"/dismiss", "")
	require.Equal(t, http.StatusOK, rec.Code)
	dismissed := decodeData[notifications.Notification](t, env)
	assert.Equal(t, notifications.StatusDismissed, dismissed.Status)
	assert.Equal(t, notifications.DefaultDismissReason, dismissed.DismissReason)
}

func TestListNotifications(t *testing.T) {
	t.Parallel()
	h := newHandler(t)
	for range 3 {
		create(t, h)
	}

	rec, env := do(t, h, http.MethodGet, "/v1/notifications?userId=user_1&limit=2&page=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeData[[]notifications.Notification](t, env)
	assert.Len(t, list, 2)
	assert.EqualValues(t, 3, env.Meta["total"])
	assert.Equal(t, true, env.Meta["hasMore"])

	for _, target := range []string{
		"/v1/notifications?unreadOnly=maybe",
		"/v1/notifications?page=-1",
		"/v1/notifications?dateFrom=yesterday",
	} {
		rec, _ := do(t, h, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestMarkAllRead(t *testing.T) {
	t.Parallel()
	h := newHandler(t)
	create(t, h)
	create(t, h)

	rec, env := do(t, h, http.MethodPost, "/v1/notifications/read-all", `{"userId":"user_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"updated": 2}, decodeData[map[string]int](t, env))

	rec, _ = do(t, h, http.MethodPost, "/v1/notifications/read-all", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBulkCreate(t *testing.T) {
	t.Parallel()
	h := newHandler(t)

	body := `{"notifications":[
		{"recipientId":"user_1","type":"message","title":"one"},
		{"recipientId":"","type":"message","title":"two"}
	],"batchSize":10}`
	rec, env := do(t, h, http.MethodPost, "/v1/notifications/bulk", body)
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	report := decodeData[notifications.BulkReport](t, env)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Successful)
	assert.Equal(t, 1, report.Failed)
	assert.True(t, report.Items[0].Success)
	assert.NotEmpty(t, report.Items[1].Error)

	rec, env = do(t, h, http.MethodPost, "/v1/notifications/bulk", `{"notifications":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_batch", env.Error.Code)
}

func TestDeliver(t *testing.T) {
	t.Parallel()
	h := newHandler(t)

	rec, env := do(t, h, http.MethodPost, "/v1/notifications",
		`{"notification":{"recipientId":"user_1","type":"message","title":"later"},"scheduleDelivery":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	n := decodeData[notifications.Notification](t, env)
	assert.Equal(t, notifications.StatusPending, n.Status)

	rec, _ = do(t, h, http.MethodPost, "/v1/notifications/"+n.ID+"/deliver", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, h, http.MethodGet, "/v1/notifications/"+n.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, notifications.StatusSent, decodeData[notifications.Notification](t, env).Status)
}

func TestEngineEndpoints(t *testing.T) {
	t.Parallel()
	h := newHandler(t)

	rec, env := do(t, h, http.MethodGet, "/v1/enums", "")
	require.Equal(t, http.StatusOK, rec.Code)
	enums := decodeData[notifications.Enumerations](t, env)
	assert.Contains(t, enums.Channels, notifications.ChannelInApp)
	assert.Contains(t, enums.Types, notifications.TypeMessage)

	rec, env = do(t, h, http.MethodGet, "/v1/engine", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeData[notifications.ServiceStats](t, env)
	assert.Equal(t, []notifications.Channel{notifications.ChannelInApp}, stats.Channels)

	rec, env = do(t, h, http.MethodPost, "/v1/users/user_1/push", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_supported", env.Error.Code)

	rec, env = do(t, h, http.MethodGet, "/v1/nothing-here", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := newHandler(t,
		api.WithReadinessCheck("store", func(context.Context) error { return nil }),
		api.WithReadinessCheck("broker", func(context.Context) error { return errors.New("down") }),
	)

	rec, _ := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"broker":"unavailable"`)
	assert.Contains(t, rec.Body.String(), `"store":"ok"`)
}

func TestMaxBodyBytes(t *testing.T) {
	t.Parallel()
	h := newHandler(t, api.WithMaxBodyBytes(16))

	rec, _ := do(t, h, http.MethodPost, "/v1/notifications", createBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newHandler(t, api.WithStreamTiming(time.Second, time.Hour)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/users/user_1/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	post, err := http.Post(srv.URL+"/v1/notifications", "application/json", bytes.NewBufferString(createBody))
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.NewDecoder(post.Body).Decode(&env))
	post.Body.Close()
	created := decodeData[notifications.Notification](t, env)

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" && len(lines) > 0 {
			break
		}
		lines = append(lines, line)
	}
	require.Len(t, lines, 3)
	assert.Equal(t, "id: "+created.ID, lines[0])
	assert.Equal(t, "event: notification", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "data: {"))
	assert.Contains(t, lines[2], created.ID)
}

package notifications_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type recordedRequest struct {
	method string
	path   string
	query  map[string]string
	body   map[string]any
	auth   string
}

type fakeStoreAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (f *fakeStoreAPI) record(r *http.Request) recordedRequest {
	rec := recordedRequest{method: r.Method, path: r.URL.Path, query: map[string]string{}, auth: r.Header.Get("Authorization")}
	for k := range r.URL.Query() {
		rec.query[k] = r.URL.Query().Get(k)
	}
	_ = json.NewDecoder(r.Body).Decode(&rec.body)

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
	return rec
}

func (f *fakeStoreAPI) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newFakeStoreAPI(t *testing.T) (*notifications.HTTPStorage, *fakeStoreAPI) {
	t.Helper()
	api := &fakeStoreAPI{}
	stored := notifications.Notification{
		ID:          "notif_1",
		RecipientID: "user_1",
		Type:        notifications.TypeMessage,
		Title:       "Hi",
		Status:      notifications.StatusPending,
		CreatedAt:   baseTime,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /notifications", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		writeJSON(w, http.StatusCreated, stored)
	})
	mux.HandleFunc("GET /notifications/{id}", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		if r.PathValue("id") != stored.ID {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, stored)
	})
	mux.HandleFunc("GET /notifications", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		writeJSON(w, http.StatusOK, notifications.ListResult{
			Notifications: []notifications.Notification{stored},
			Total:         1,
			UnreadCount:   1,
			Page:          1,
			Limit:         20,
		})
	})
	mux.HandleFunc("PATCH /notifications/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		read := stored
		read.Status = notifications.StatusRead
		writeJSON(w, http.StatusOK, read)
	})
	mux.HandleFunc("PATCH /notifications/mark-all-read", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		writeJSON(w, http.StatusOK, map[string]int{"count": 4})
	})
	mux.HandleFunc("PATCH /notifications/{id}/attempts", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		writeJSON(w, http.StatusOK, map[string]int{"attempts": 2})
	})
	mux.HandleFunc("DELETE /notifications/{id}", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /notifications/bulk", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		writeJSON(w, http.StatusOK, map[string]any{"results": []notifications.BulkItemResult{
			{Index: 0, ID: "a", Success: true},
			{Index: 1, Error: "invalid"},
		}})
	})
	mux.HandleFunc("GET /notifications/stats", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		writeJSON(w, http.StatusOK, notifications.Stats{Total: 9, Unread: 3})
	})
	mux.HandleFunc("POST /notifications/{id}/send-email", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("POST /notifications/{id}/send-sms", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "provider down"})
	})
	mux.HandleFunc("POST /notifications/template", func(w http.ResponseWriter, r *http.Request) {
		rec := api.record(r)
		if rec.body["template"] != "new_message" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown template"})
			return
		}
		writeJSON(w, http.StatusOK, notifications.Rendered{Title: "New message", Body: "Hello"})
	})
	mux.HandleFunc("POST /notifications/process-pending", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		writeJSON(w, http.StatusOK, notifications.ProcessPendingResult{ProcessedCount: 5, FailedCount: 1})
	})
	mux.HandleFunc("POST /notifications/cleanup-expired", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		writeJSON(w, http.StatusOK, notifications.CleanupResult{CleanedCount: 7})
	})
	mux.HandleFunc("GET /notifications/push/vapid-key", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		writeJSON(w, http.StatusOK, map[string]string{"publicKey": "BPk"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := notifications.NewHTTPStorage(srv.URL+"/", notifications.WithAuthToken("secret"), notifications.WithRequestTimeout(5*time.Second))
	t.Cleanup(func() { _ = s.Close() })
	return s, api
}

func TestHTTPStorage_CRUD(t *testing.T) {
	t.Parallel()

	s, api := newFakeStoreAPI(t)
	ctx := context.Background()

	created, err := s.Create(ctx, validNotification())
	require.NoError(t, err)
	assert.Equal(t, "notif_1", created.ID)
	last := api.last()
	assert.Equal(t, "Bearer secret", last.auth)
	assert.Equal(t, "user_1", last.body["recipientId"])

	got, err := s.Get(ctx, "notif_1")
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusPending, got.Status)

	read, err := s.MarkRead(ctx, "notif_1", baseTime)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusRead, read.Status)
	assert.Contains(t, api.last().body, "readAt")

	count, err := s.MarkAllRead(ctx, notifications.MarkAllReadParams{UserID: "user_1", Category: notifications.CategoryMessages})
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, "messages", api.last().body["category"])

	attempts, ok, err := s.IncrementAttempts(ctx, "notif_1", 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, attempts)
	assert.EqualValues(t, 5, api.last().body["max"])

	_, ok, err = s.IncrementAttempts(ctx, "notif_1", 1)
	require.NoError(t, err)
	assert.False(t, ok, "count above the cap means the store ignored it")

	require.NoError(t, s.Delete(ctx, "notif_1", "user_request", baseTime))
	assert.Equal(t, http.MethodDelete, api.last().method)
	assert.Equal(t, "user_request", api.last().body["reason"])
}

func TestHTTPStorage_NotFound(t *testing.T) {
	t.Parallel()

	s, _ := newFakeStoreAPI(t)

	_, err := s.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, notifications.ErrNotificationNotFound)
	assert.ErrorIs(t, err, notifications.ErrStore)
	assert.False(t, notifications.IsRetryable(err))

	var serr *notifications.StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
	assert.Equal(t, "get", serr.Op)
}

func TestHTTPStorage_List(t *testing.T) {
	t.Parallel()

	s, api := newFakeStoreAPI(t)

	res, err := s.List(context.Background(), notifications.ListFilter{
		UserID:        "user_1",
		UnreadOnly:    true,
		Category:      notifications.CategoryMessages,
		CreatedBefore: baseTime,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Notifications, 1)

	q := api.last().query
	assert.Equal(t, "user_1", q["user_id"])
	assert.Equal(t, "true", q["unread_only"])
	assert.Equal(t, "messages", q["category"])
	assert.Equal(t, "1", q["page"])
	assert.Equal(t, "20", q["limit"])
	assert.Equal(t, "created_at", q["sort_by"])
	assert.Equal(t, "desc", q["sort_order"])
	assert.Equal(t, baseTime.Format(time.RFC3339), q["created_before"])
	assert.NotContains(t, q, "type")
}

func TestHTTPStorage_BulkAndStats(t *testing.T) {
	t.Parallel()

	s, api := newFakeStoreAPI(t)
	ctx := context.Background()

	results, err := s.BulkCreate(ctx, notifications.BulkCreateRequest{
		Notifications:    []notifications.Notification{validNotification(), validNotification()},
		ScheduleDelivery: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.Equal(t, true, api.last().body["scheduleDelivery"])

	st, err := s.Stats(ctx, notifications.StatsQuery{UserID: "user_1"})
	require.NoError(t, err)
	assert.Equal(t, 9, st.Total)
	assert.Equal(t, "day", api.last().query["group_by"])
}

func TestHTTPStorage_SendChannel(t *testing.T) {
	t.Parallel()

	s, api := newFakeStoreAPI(t)
	ctx := context.Background()

	require.NoError(t, s.SendChannel(ctx, "notif_1", notifications.ChannelEmail, map[string]any{"title": "Hi"}))
	assert.Equal(t, "/notifications/notif_1/send-email", api.last().path)

	err := s.SendChannel(ctx, "notif_1", notifications.ChannelSMS, nil)
	require.Error(t, err)
	assert.True(t, notifications.IsRetryable(err), "5xx is retryable")
}

func TestHTTPStorage_Capabilities(t *testing.T) {
	t.Parallel()

	s, _ := newFakeStoreAPI(t)
	ctx := context.Background()

	out, err := s.Render(ctx, "new_message", map[string]any{"senderName": "A"})
	require.NoError(t, err)
	assert.Equal(t, "New message", out.Title)

	_, err = s.Render(ctx, "nope", nil)
	assert.ErrorIs(t, err, notifications.ErrTemplateNotFound)

	pending, err := s.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, notifications.ProcessPendingResult{ProcessedCount: 5, FailedCount: 1}, pending)

	cleaned, err := s.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, cleaned.CleanedCount)

	key, err := s.VAPIDKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BPk", key)
}

func TestHTTPStorage_TransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := notifications.NewHTTPStorage(url, notifications.WithRequestTimeout(time.Second))
	defer s.Close()

	_, err := s.Get(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, notifications.ErrStore)
	assert.True(t, notifications.IsRetryable(err))
}

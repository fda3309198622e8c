package notifications

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"resty.dev/v3"
)

// HTTPStorage is a Storage backed by the remote notification REST API.
// It also exposes the API's server-side send, template, sweep, push and
// action endpoints.
type HTTPStorage struct {
	client *resty.Client
}

// HTTPStorageOption configures an HTTPStorage.
type HTTPStorageOption func(*resty.Client)

// WithAuthToken sends a bearer token with every request.
func WithAuthToken(token string) HTTPStorageOption {
	return func(c *resty.Client) {
		if token != "" {
			c.SetAuthToken(token)
		}
	}
}

// WithRequestTimeout bounds every request.
func WithRequestTimeout(d time.Duration) HTTPStorageOption {
	return func(c *resty.Client) {
		if d > 0 {
			c.SetTimeout(d)
		}
	}
}

// WithHeader adds a static header to every request.
func WithHeader(key, value string) HTTPStorageOption {
	return func(c *resty.Client) {
		c.SetHeader(key, value)
	}
}

func NewHTTPStorage(baseURL string, opts ...HTTPStorageOption) *HTTPStorage {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(15*time.Second).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return &HTTPStorage{client: c}
}

// Close releases idle connections.
func (s *HTTPStorage) Close() error {
	return s.client.Close()
}

func (s *HTTPStorage) do(ctx context.Context, op, method, path string, req *resty.Request, result any) error {
	if req == nil {
		req = s.client.R()
	}
	req.SetContext(ctx)
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return &StoreError{Op: op, Err: err}
	}
	if resp.IsError() {
		msg := strings.TrimSpace(resp.String())
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		return &StoreError{Op: op, StatusCode: resp.StatusCode(), Err: errors.New(msg)}
	}
	return nil
}

func (s *HTTPStorage) Create(ctx context.Context, n Notification) (Notification, error) {
	var out Notification
	err := s.do(ctx, "create", http.MethodPost, "/notifications", s.client.R().SetBody(n), &out)
	return out, err
}

func (s *HTTPStorage) Get(ctx context.Context, id string) (Notification, error) {
	var out Notification
	err := s.do(ctx, "get", http.MethodGet, "/notifications/{id}",
		s.client.R().SetPathParam("id", id), &out)
	return out, err
}

func (s *HTTPStorage) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	var out ListResult
	err := s.do(ctx, "list", http.MethodGet, "/notifications",
		s.client.R().SetQueryParams(listQuery(filter.Normalize())), &out)
	return out, err
}

func (s *HTTPStorage) MarkRead(ctx context.Context, id string, readAt time.Time) (Notification, error) {
	var out Notification
	err := s.do(ctx, "mark read", http.MethodPatch, "/notifications/{id}/read",
		s.client.R().SetPathParam("id", id).SetBody(map[string]any{"readAt": readAt}), &out)
	return out, err
}

func (s *HTTPStorage) MarkAllRead(ctx context.Context, params MarkAllReadParams) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := s.do(ctx, "mark all read", http.MethodPatch, "/notifications/mark-all-read",
		s.client.R().SetBody(params), &out)
	return out.Count, err
}

func (s *HTTPStorage) Dismiss(ctx context.Context, id, reason string, dismissedAt time.Time) (Notification, error) {
	var out Notification
	err := s.do(ctx, "dismiss", http.MethodPatch, "/notifications/{id}/dismiss",
		s.client.R().SetPathParam("id", id).SetBody(map[string]any{
			"reason":      reason,
			"dismissedAt": dismissedAt,
		}), &out)
	return out, err
}

func (s *HTTPStorage) UpdateStatus(ctx context.Context, id string, update StatusUpdate) (Notification, error) {
	var out Notification
	err := s.do(ctx, "update status", http.MethodPatch, "/notifications/{id}/status",
		s.client.R().SetPathParam("id", id).SetBody(update), &out)
	return out, err
}

// IncrementAttempts sends the cap along with the increment. A store that
// does not report "incremented" is trusted when the new count stays within limit.
func (s *HTTPStorage) IncrementAttempts(ctx context.Context, id string, limit int) (int, bool, error) {
	var out struct {
		Attempts    int   `json:"attempts"`
		Incremented *bool `json:"incremented"`
	}
	err := s.do(ctx, "increment attempts", http.MethodPatch, "/notifications/{id}/attempts",
		s.client.R().SetPathParam("id", id).SetBody(map[string]any{"increment": 1, "max": limit}), &out)
	if err != nil {
		return 0, false, err
	}
	if out.Incremented != nil {
		return out.Attempts, *out.Incremented, nil
	}
	return out.Attempts, out.Attempts <= limit, nil
}

func (s *HTTPStorage) Delete(ctx context.Context, id, reason string, deletedAt time.Time) error {
	return s.do(ctx, "delete", http.MethodDelete, "/notifications/{id}",
		s.client.R().SetPathParam("id", id).SetAllowMethodDeletePayload(true).SetBody(map[string]any{
			"reason":     reason,
			"deleted_at": deletedAt,
		}), nil)
}

func (s *HTTPStorage) BulkCreate(ctx context.Context, req BulkCreateRequest) ([]BulkItemResult, error) {
	var out struct {
		Results []BulkItemResult `json:"results"`
	}
	if err := s.do(ctx, "bulk create", http.MethodPost, "/notifications/bulk",
		s.client.R().SetBody(req), &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (s *HTTPStorage) Stats(ctx context.Context, q StatsQuery) (Stats, error) {
	q = q.Normalize()
	params := map[string]string{"group_by": q.GroupBy}
	if q.UserID != "" {
		params["user_id"] = q.UserID
	}
	if !q.DateFrom.IsZero() {
		params["date_from"] = q.DateFrom.UTC().Format(time.RFC3339)
	}
	if !q.DateTo.IsZero() {
		params["date_to"] = q.DateTo.UTC().Format(time.RFC3339)
	}

	var out Stats
	err := s.do(ctx, "stats", http.MethodGet, "/notifications/stats",
		s.client.R().SetQueryParams(params), &out)
	return out, err
}

// SendChannel asks the store to deliver notification id over ch.
func (s *HTTPStorage) SendChannel(ctx context.Context, id string, ch Channel, payload map[string]any) error {
	path := "/notifications/{id}/send-" + strings.ReplaceAll(string(ch), "_", "-")
	req := s.client.R().SetPathParam("id", id)
	if payload != nil {
		req.SetBody(payload)
	}
	return s.do(ctx, "send "+string(ch), http.MethodPost, path, req, nil)
}

// SendPush delivers through the store's push endpoint.
func (s *HTTPStorage) SendPush(ctx context.Context, n Notification, sub PushSubscription) error {
	return s.SendChannel(ctx, n.ID, ChannelPush, map[string]any{"subscription": sub})
}

// Render renders a template server-side.
func (s *HTTPStorage) Render(ctx context.Context, name string, data map[string]any) (Rendered, error) {
	var out Rendered
	err := s.do(ctx, "render template", http.MethodPost, "/notifications/template",
		s.client.R().SetBody(map[string]any{"template": name, "data": data}), &out)
	if err != nil && errors.Is(err, ErrNotificationNotFound) {
		return Rendered{}, errors.Join(ErrTemplateNotFound, err)
	}
	return out, err
}

func (s *HTTPStorage) ProcessPending(ctx context.Context) (ProcessPendingResult, error) {
	var out ProcessPendingResult
	err := s.do(ctx, "process pending", http.MethodPost, "/notifications/process-pending", nil, &out)
	return out, err
}

func (s *HTTPStorage) CleanupExpired(ctx context.Context) (CleanupResult, error) {
	var out CleanupResult
	err := s.do(ctx, "cleanup expired", http.MethodPost, "/notifications/cleanup-expired", nil, &out)
	return out, err
}

func (s *HTTPStorage) RegisterPushSubscription(ctx context.Context, userID string, sub PushSubscription) error {
	return s.do(ctx, "push subscribe", http.MethodPost, "/notifications/push/subscribe",
		s.client.R().SetBody(map[string]any{"userId": userID, "subscription": sub}), nil)
}

func (s *HTTPStorage) VAPIDKey(ctx context.Context) (string, error) {
	var out struct {
		PublicKey string `json:"publicKey"`
	}
	err := s.do(ctx, "vapid key", http.MethodGet, "/notifications/push/vapid-key", nil, &out)
	return out.PublicKey, err
}

func (s *HTTPStorage) ExecuteAction(ctx context.Context, id string, action Action) error {
	return s.do(ctx, "execute action", http.MethodPost, "/notifications/{id}/actions",
		s.client.R().SetPathParam("id", id).SetBody(map[string]any{"action": action}), nil)
}

func listQuery(f ListFilter) map[string]string {
	q := map[string]string{
		"page":       strconv.Itoa(f.Page),
		"limit":      strconv.Itoa(f.Limit),
		"sort_by":    f.SortBy,
		"sort_order": f.SortOrder,
	}
	set := func(k, v string) {
		if v != "" {
			q[k] = v
		}
	}
	setTime := func(k string, t time.Time) {
		if !t.IsZero() {
			q[k] = t.UTC().Format(time.RFC3339)
		}
	}
	set("user_id", f.UserID)
	set("type", string(f.Type))
	set("category", string(f.Category))
	set("priority", string(f.Priority))
	set("status", string(f.Status))
	if f.UnreadOnly {
		q["unread_only"] = "true"
	}
	setTime("date_from", f.DateFrom)
	setTime("date_to", f.DateTo)
	setTime("expires_before", f.ExpiresBefore)
	setTime("created_before", f.CreatedBefore)
	return q
}

package notifications

import (
	"context"
	"time"
)

// Storage handles notification persistence and retrieval.
// Implementations return errors wrapping ErrNotificationNotFound for unknown IDs.
type Storage interface {
	// Create stores a new notification and returns the stored record.
	Create(ctx context.Context, n Notification) (Notification, error)

	Get(ctx context.Context, id string) (Notification, error)

	// List returns one page of notifications matching the filter.
	List(ctx context.Context, filter ListFilter) (ListResult, error)

	MarkRead(ctx context.Context, id string, readAt time.Time) (Notification, error)

	// MarkAllRead marks every unread notification matching params as read
	// and returns how many were changed.
	MarkAllRead(ctx context.Context, params MarkAllReadParams) (int, error)

	Dismiss(ctx context.Context, id, reason string, dismissedAt time.Time) (Notification, error)

	// UpdateStatus sets the status and appends delivery results.
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) (Notification, error)

	// IncrementAttempts bumps the persisted attempt counter unless it has
	// already reached limit. It returns the resulting count and whether the
	// counter changed; the check and the increment are one atomic step.
	IncrementAttempts(ctx context.Context, id string, limit int) (int, bool, error)

	Delete(ctx context.Context, id, reason string, deletedAt time.Time) error

	// BulkCreate stores many notifications in one call. The result holds
	// one entry per requested notification, in request order.
	BulkCreate(ctx context.Context, req BulkCreateRequest) ([]BulkItemResult, error)

	Stats(ctx context.Context, query StatsQuery) (Stats, error)
}

// ListFilter selects and paginates notifications. Zero values mean "any".
type ListFilter struct {
	UserID        string    `json:"user_id,omitempty"`
	Type          Type      `json:"type,omitempty"`
	Category      Category  `json:"category,omitempty"`
	Priority      Priority  `json:"priority,omitempty"`
	Status        Status    `json:"status,omitempty"`
	UnreadOnly    bool      `json:"unread_only,omitempty"`
	DateFrom      time.Time `json:"date_from,omitzero"`
	DateTo        time.Time `json:"date_to,omitzero"`
	ExpiresBefore time.Time `json:"expires_before,omitzero"`
	CreatedBefore time.Time `json:"created_before,omitzero"`
	Page          int       `json:"page"`
	Limit         int       `json:"limit"`
	SortBy        string    `json:"sort_by"`
	SortOrder     string    `json:"sort_order"`
}

const (
	defaultPage      = 1
	defaultPageLimit = 20
	maxPageLimit     = 100

	SortByCreatedAt = "created_at"
	SortByPriority  = "priority"
	SortByExpiresAt = "expires_at"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// Normalize fills pagination and sorting defaults.
func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = defaultPage
	}
	if f.Limit < 1 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	switch f.SortBy {
	case SortByCreatedAt, SortByPriority, SortByExpiresAt:
	default:
		f.SortBy = SortByCreatedAt
	}
	if f.SortOrder != SortAsc {
		f.SortOrder = SortDesc
	}
	return f
}

// Matches reports whether n satisfies every non-zero criterion of the filter.
// Pagination fields are ignored.
func (f ListFilter) Matches(n Notification) bool {
	switch {
	case f.UserID != "" && n.RecipientID != f.UserID,
		f.Type != "" && n.Type != f.Type,
		f.Category != "" && n.Category != f.Category,
		f.Priority != "" && n.Priority != f.Priority,
		f.Status != "" && n.Status != f.Status,
		f.UnreadOnly && !n.IsUnread(),
		!f.DateFrom.IsZero() && n.CreatedAt.Before(f.DateFrom),
		!f.DateTo.IsZero() && n.CreatedAt.After(f.DateTo),
		!f.ExpiresBefore.IsZero() && (n.ExpiresAt.IsZero() || !n.ExpiresAt.Before(f.ExpiresBefore)),
		!f.CreatedBefore.IsZero() && !n.CreatedAt.Before(f.CreatedBefore):
		return false
	}
	return true
}

// ListResult is one page of notifications.
type ListResult struct {
	Notifications []Notification `json:"notifications"`
	Total         int            `json:"total"`
	HasMore       bool           `json:"hasMore"`
	UnreadCount   int            `json:"unreadCount"`
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
}

// MarkAllReadParams scopes a bulk read to a recipient and optionally a category or type.
type MarkAllReadParams struct {
	UserID   string    `json:"user_id"`
	Category Category  `json:"category,omitempty"`
	Type     Type      `json:"type,omitempty"`
	ReadAt   time.Time `json:"read_at"`
}

// StatusUpdate is a lifecycle transition persisted by the dispatcher or sweeps.
type StatusUpdate struct {
	Status  Status           `json:"status,omitempty"`
	Results []DeliveryResult `json:"deliveryResults,omitempty"`
	At      time.Time        `json:"updatedAt"`
}

// BulkCreateRequest is one chunk submitted to the store's bulk endpoint.
type BulkCreateRequest struct {
	Notifications    []Notification `json:"notifications"`
	DeliveryChannels []Channel      `json:"deliveryChannels,omitempty"`
	ScheduleDelivery bool           `json:"scheduleDelivery"`
}

// BulkItemResult is the per-notification outcome of a bulk create.
type BulkItemResult struct {
	Index   int    `json:"index"`
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type freshReader interface {
	GetFresh(ctx context.Context, id string) (Notification, error)
	ListFresh(ctx context.Context, filter ListFilter) (ListResult, error)
}

// getFresh reads a notification bypassing any read cache.
func getFresh(ctx context.Context, s Storage, id string) (Notification, error) {
	if f, ok := s.(freshReader); ok {
		return f.GetFresh(ctx, id)
	}
	return s.Get(ctx, id)
}

// listFresh lists notifications bypassing any read cache.
func listFresh(ctx context.Context, s Storage, filter ListFilter) (ListResult, error) {
	if f, ok := s.(freshReader); ok {
		return f.ListFresh(ctx, filter)
	}
	return s.List(ctx, filter)
}

// RemoteSender is implemented by stores that deliver channels server-side.
type RemoteSender interface {
	SendChannel(ctx context.Context, id string, ch Channel, payload map[string]any) error
}

// PushSender delivers a notification to a device subscription.
type PushSender interface {
	SendPush(ctx context.Context, n Notification, sub PushSubscription) error
}

// PushSubscriptionRegistry stores device subscriptions server-side.
type PushSubscriptionRegistry interface {
	RegisterPushSubscription(ctx context.Context, userID string, sub PushSubscription) error
	VAPIDKey(ctx context.Context) (string, error)
}

// ActionExecutor runs a notification's call-to-action server-side.
type ActionExecutor interface {
	ExecuteAction(ctx context.Context, id string, action Action) error
}

// ProcessPendingResult is the store's report of a server-side pending sweep.
type ProcessPendingResult struct {
	ProcessedCount int `json:"processedCount"`
	FailedCount    int `json:"failedCount"`
}

// CleanupResult is the store's report of a server-side expiration sweep.
type CleanupResult struct {
	CleanedCount int `json:"cleanedCount"`
}

// RemoteSweeper is implemented by stores that run sweeps server-side.
type RemoteSweeper interface {
	ProcessPending(ctx context.Context) (ProcessPendingResult, error)
	CleanupExpired(ctx context.Context) (CleanupResult, error)
}

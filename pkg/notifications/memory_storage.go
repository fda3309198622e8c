package notifications

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var priorityRank = map[Priority]int{
	PriorityLow:      0,
	PriorityNormal:   1,
	PriorityHigh:     2,
	PriorityUrgent:   3,
	PriorityCritical: 4,
}

// MemoryStorage is an in-memory implementation of the Storage interface.
// Suitable for development and testing.
type MemoryStorage struct {
	mu            sync.RWMutex
	notifications map[string]Notification
	clock         clockwork.Clock
	bulkCalls     []int
}

// MemoryStorageOption configures a MemoryStorage.
type MemoryStorageOption func(*MemoryStorage)

// WithStorageClock sets the clock used for timestamps.
func WithStorageClock(clock clockwork.Clock) MemoryStorageOption {
	return func(s *MemoryStorage) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemoryStorage creates a new in-memory notification storage.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	s := &MemoryStorage{
		notifications: make(map[string]Notification),
		clock:         clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID returns a fresh notification identifier.
func NewID() string {
	return "notif_" + uuid.NewString()
}

func (s *MemoryStorage) Create(_ context.Context, n Notification) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(n)
}

// Must be called with s.mu held.
func (s *MemoryStorage) create(n Notification) (Notification, error) {
	if n.RecipientID == "" {
		return Notification{}, fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if n.ID == "" {
		n.ID = NewID()
	}
	if _, exists := s.notifications[n.ID]; exists {
		return Notification{}, fmt.Errorf("notification %s already exists", n.ID)
	}

	now := s.clock.Now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.Status == "" {
		n.Status = StatusPending
	}
	n.UpdatedAt = now

	stored := n.Clone()
	s.notifications[n.ID] = stored
	return stored.Clone(), nil
}

func (s *MemoryStorage) Get(_ context.Context, id string) (Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return Notification{}, fmt.Errorf("%w: %s", ErrNotificationNotFound, id)
	}
	// Return a copy to prevent external mutation of stored data
	return n.Clone(), nil
}

func (s *MemoryStorage) List(_ context.Context, filter ListFilter) (ListResult, error) {
	filter = filter.Normalize()

	s.mu.RLock()
	var matched []Notification
	unread := 0
	for _, n := range s.notifications {
		if !filter.Matches(n) {
			continue
		}
		matched = append(matched, n.Clone())
		if n.IsUnread() {
			unread++
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b Notification) int {
		var c int
		switch filter.SortBy {
		case SortByPriority:
			c = cmp.Compare(priorityRank[a.Priority], priorityRank[b.Priority])
		case SortByExpiresAt:
			c = a.ExpiresAt.Compare(b.ExpiresAt)
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if filter.SortOrder == SortDesc {
			c = -c
		}
		return c
	})

	total := len(matched)
	start := min((filter.Page-1)*filter.Limit, total)
	end := min(start+filter.Limit, total)

	return ListResult{
		Notifications: matched[start:end],
		Total:         total,
		HasMore:       end < total,
		UnreadCount:   unread,
		Page:          filter.Page,
		Limit:         filter.Limit,
	}, nil
}

func (s *MemoryStorage) MarkRead(_ context.Context, id string, readAt time.Time) (Notification, error) {
	return s.update(id, func(n *Notification) {
		if n.ReadAt == nil {
			n.ReadAt = &readAt
		}
		n.Status = StatusRead
	})
}

// MarkAllRead reads only notifications the lifecycle lets move to read;
// pending ones stay pending.
func (s *MemoryStorage) MarkAllRead(ctx context.Context, params MarkAllReadParams) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	count := 0
	for id, n := range s.notifications {
		if n.RecipientID != params.UserID || !n.IsUnread() || !CanApply(ctx, n, EventRead, now) {
			continue
		}
		if params.Category != "" && n.Category != params.Category {
			continue
		}
		if params.Type != "" && n.Type != params.Type {
			continue
		}
		readAt := params.ReadAt
		n.ReadAt = &readAt
		n.Status = StatusRead
		n.UpdatedAt = now
		s.notifications[id] = n
		count++
	}
	return count, nil
}

func (s *MemoryStorage) Dismiss(_ context.Context, id, reason string, dismissedAt time.Time) (Notification, error) {
	return s.update(id, func(n *Notification) {
		n.Status = StatusDismissed
		n.DismissReason = reason
		n.DismissedAt = &dismissedAt
	})
}

func (s *MemoryStorage) UpdateStatus(_ context.Context, id string, u StatusUpdate) (Notification, error) {
	return s.update(id, func(n *Notification) {
		if u.Status != "" {
			n.Status = u.Status
		}
		n.DeliveryResults = append(n.DeliveryResults, u.Results...)
	})
}

func (s *MemoryStorage) IncrementAttempts(_ context.Context, id string, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return 0, false, fmt.Errorf("%w: %s", ErrNotificationNotFound, id)
	}
	if n.Attempts >= limit {
		return n.Attempts, false, nil
	}
	n.Attempts++
	n.UpdatedAt = s.clock.Now()
	s.notifications[id] = n
	return n.Attempts, true, nil
}

func (s *MemoryStorage) Delete(_ context.Context, id, _ string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notifications[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotificationNotFound, id)
	}
	delete(s.notifications, id)
	return nil
}

func (s *MemoryStorage) BulkCreate(_ context.Context, req BulkCreateRequest) ([]BulkItemResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bulkCalls = append(s.bulkCalls, len(req.Notifications))
	out := make([]BulkItemResult, len(req.Notifications))
	for i, n := range req.Notifications {
		if len(req.DeliveryChannels) > 0 && len(n.DeliveryChannels) == 0 {
			n.DeliveryChannels = slices.Clone(req.DeliveryChannels)
		}
		stored, err := s.create(n)
		if err != nil {
			out[i] = BulkItemResult{Index: i, Error: err.Error()}
			continue
		}
		out[i] = BulkItemResult{Index: i, ID: stored.ID, Success: true}
	}
	return out, nil
}

// BulkCalls returns the size of every BulkCreate chunk received so far.
func (s *MemoryStorage) BulkCalls() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.bulkCalls)
}

func (s *MemoryStorage) Stats(_ context.Context, q StatsQuery) (Stats, error) {
	s.mu.RLock()
	items := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		items = append(items, n)
	}
	s.mu.RUnlock()

	return AggregateStats(items, q), nil
}

// Len returns the number of stored notifications.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notifications)
}

func (s *MemoryStorage) update(id string, fn func(*Notification)) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return Notification{}, fmt.Errorf("%w: %s", ErrNotificationNotFound, id)
	}
	n = n.Clone()
	fn(&n)
	n.UpdatedAt = s.clock.Now()
	s.notifications[id] = n
	return n.Clone(), nil
}

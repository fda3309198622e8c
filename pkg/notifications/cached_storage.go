package notifications

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/cache"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

const (
	cacheKeyNotification = "notification_"
	cacheKeyList         = "notification_list_"
	cacheKeyStats        = "notification_stats_"

	TagNotifications = "notifications"
	TagAlerts        = "alerts"
	TagStatistics    = "statistics"

	DefaultCacheTTL = 300 * time.Second
	DefaultStatsTTL = 120 * time.Second
)

// UserTag returns the cache tag scoping entries to one recipient.
func UserTag(userID string) string {
	return "user:" + userID
}

// CachedStorage decorates a Storage with a fingerprint-keyed read cache.
// Reads go through the cache; every write invalidates the notifications
// tag and the recipient tag before returning.
type CachedStorage struct {
	Storage
	cache    cache.Cache
	ttl      time.Duration
	statsTTL time.Duration
	logger   *slog.Logger

	// generation is bumped by every write. A read that started before a
	// write does not repopulate the cache with its result.
	generation atomic.Uint64
}

// CachedStorageOption configures a CachedStorage.
type CachedStorageOption func(*CachedStorage)

// WithReadTTL sets the lifetime of cached notifications and list pages.
func WithReadTTL(d time.Duration) CachedStorageOption {
	return func(s *CachedStorage) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithStatsTTL sets the lifetime of cached statistics.
func WithStatsTTL(d time.Duration) CachedStorageOption {
	return func(s *CachedStorage) {
		if d > 0 {
			s.statsTTL = d
		}
	}
}

// WithCacheLogger sets the logger used for cache failures.
func WithCacheLogger(l *slog.Logger) CachedStorageOption {
	return func(s *CachedStorage) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewCachedStorage(next Storage, c cache.Cache, opts ...CachedStorageOption) *CachedStorage {
	s := &CachedStorage{
		Storage:  next,
		cache:    c,
		ttl:      DefaultCacheTTL,
		statsTTL: DefaultStatsTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fingerprint returns a stable hash of a query value.
func Fingerprint(v any) string {
	raw, _ := json.Marshal(v)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (s *CachedStorage) Get(ctx context.Context, id string) (Notification, error) {
	key := cacheKeyNotification + id
	var n Notification
	if s.lookup(ctx, key, &n) {
		return n, nil
	}

	gen := s.generation.Load()
	n, err := s.Storage.Get(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	s.store(ctx, gen, key, n, s.ttl, recipientTags(n.RecipientID)...)
	return n, nil
}

func (s *CachedStorage) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	filter = filter.Normalize()
	key := cacheKeyList + Fingerprint(filter)
	var res ListResult
	if s.lookup(ctx, key, &res) {
		return res, nil
	}

	gen := s.generation.Load()
	res, err := s.Storage.List(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	s.store(ctx, gen, key, res, s.ttl, recipientTags(filter.UserID)...)
	return res, nil
}

func (s *CachedStorage) Stats(ctx context.Context, q StatsQuery) (Stats, error) {
	q = q.Normalize()
	key := cacheKeyStats + Fingerprint(q)
	var st Stats
	if s.lookup(ctx, key, &st) {
		return st, nil
	}

	gen := s.generation.Load()
	st, err := s.Storage.Stats(ctx, q)
	if err != nil {
		return Stats{}, err
	}
	s.store(ctx, gen, key, st, s.statsTTL, append(recipientTags(q.UserID), TagStatistics)...)
	return st, nil
}

func (s *CachedStorage) Create(ctx context.Context, n Notification) (out Notification, err error) {
	defer func() { s.invalidate(ctx, n.RecipientID) }()
	return s.Storage.Create(ctx, n)
}

func (s *CachedStorage) MarkRead(ctx context.Context, id string, readAt time.Time) (out Notification, err error) {
	defer func() { s.invalidate(ctx, out.RecipientID, id) }()
	return s.Storage.MarkRead(ctx, id, readAt)
}

func (s *CachedStorage) MarkAllRead(ctx context.Context, params MarkAllReadParams) (int, error) {
	defer s.invalidate(ctx, params.UserID)
	return s.Storage.MarkAllRead(ctx, params)
}

func (s *CachedStorage) Dismiss(ctx context.Context, id, reason string, at time.Time) (out Notification, err error) {
	defer func() { s.invalidate(ctx, out.RecipientID, id) }()
	return s.Storage.Dismiss(ctx, id, reason, at)
}

func (s *CachedStorage) UpdateStatus(ctx context.Context, id string, u StatusUpdate) (out Notification, err error) {
	defer func() { s.invalidate(ctx, out.RecipientID, id) }()
	return s.Storage.UpdateStatus(ctx, id, u)
}

func (s *CachedStorage) IncrementAttempts(ctx context.Context, id string, limit int) (int, bool, error) {
	defer s.invalidate(ctx, "", id)
	return s.Storage.IncrementAttempts(ctx, id, limit)
}

func (s *CachedStorage) Delete(ctx context.Context, id, reason string, at time.Time) error {
	defer s.invalidate(ctx, "", id)
	return s.Storage.Delete(ctx, id, reason, at)
}

func (s *CachedStorage) BulkCreate(ctx context.Context, req BulkCreateRequest) ([]BulkItemResult, error) {
	defer s.invalidate(ctx, "")
	return s.Storage.BulkCreate(ctx, req)
}

// GetFresh reads through to the decorated storage, bypassing the cache.
func (s *CachedStorage) GetFresh(ctx context.Context, id string) (Notification, error) {
	return s.Storage.Get(ctx, id)
}

// ListFresh reads through to the decorated storage, bypassing the cache.
func (s *CachedStorage) ListFresh(ctx context.Context, filter ListFilter) (ListResult, error) {
	return s.Storage.List(ctx, filter)
}

// Unwrap returns the decorated storage.
func (s *CachedStorage) Unwrap() Storage {
	return s.Storage
}

func (s *CachedStorage) lookup(ctx context.Context, key string, dst any) bool {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "cache read failed",
			slog.String("key", key), logger.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.drop(ctx, key)
		return false
	}
	return true
}

func (s *CachedStorage) store(ctx context.Context, gen uint64, key string, v any, ttl time.Duration, tags ...string) {
	if s.generation.Load() != gen {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, ttl, tags...); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "cache write failed",
			slog.String("key", key), logger.Error(err))
		return
	}
	// A write may have slipped in between the check and the Set.
	if s.generation.Load() != gen {
		s.drop(ctx, key)
	}
}

func (s *CachedStorage) invalidate(ctx context.Context, userID string, ids ...string) {
	s.generation.Add(1)

	tags := []string{TagNotifications}
	if userID != "" {
		tags = append(tags, UserTag(userID))
	}
	if err := s.cache.DeleteByTag(ctx, tags...); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "cache invalidation failed", logger.Error(err))
	}
	if len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = cacheKeyNotification + id
		}
		s.drop(ctx, keys...)
	}
}

// drop deletes keys; a failure leaves the entries to expire on their TTL.
func (s *CachedStorage) drop(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "cache delete failed",
			slog.Any("keys", keys), logger.Error(err))
	}
}

func recipientTags(userID string) []string {
	tags := []string{TagNotifications, TagAlerts}
	if userID != "" {
		tags = append(tags, UserTag(userID))
	}
	return tags
}

// Package pgstorage is a PostgreSQL implementation of notifications.Storage
// built on pgx. Deleted notifications are kept as tombstones and hidden
// from every read.
package pgstorage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/pg"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DBTX is the subset of pgx shared by pools and transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Storage persists notifications in PostgreSQL.
type Storage struct {
	db       DBTX
	clock    clockwork.Clock
	vapidKey string
}

// Option configures a Storage.
type Option func(*Storage)

func WithClock(c clockwork.Clock) Option {
	return func(s *Storage) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithVAPIDKey sets the application server key handed to push clients.
func WithVAPIDKey(key string) Option {
	return func(s *Storage) { s.vapidKey = key }
}

func New(db DBTX, opts ...Option) *Storage {
	s := &Storage{db: db, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, table string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	return pg.MigrateFS(ctx, pool, migrations, "migrations", table, log)
}

func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if pg.IsNotFoundError(err) {
		return fmt.Errorf("%w: %w", notifications.ErrNotificationNotFound, err)
	}
	se := &notifications.StoreError{Op: op, Err: err}
	if pg.IsDuplicateKeyError(err) {
		se.StatusCode = http.StatusConflict
	}
	return se
}

func (s *Storage) Create(ctx context.Context, n notifications.Notification) (notifications.Notification, error) {
	n = s.defaults(n)
	args, err := insertArgs(n)
	if err != nil {
		return notifications.Notification{}, storeError("create", err)
	}
	row := s.db.QueryRow(ctx,
		"INSERT INTO notifications ("+columns+") VALUES "+placeholders(1, insertColumns, 0)+" RETURNING "+columns,
		args...)
	out, err := scanNotification(row)
	return out, storeError("create", err)
}

func (s *Storage) defaults(n notifications.Notification) notifications.Notification {
	now := s.clock.Now().UTC()
	if n.ID == "" {
		n.ID = notifications.NewID()
	}
	if n.Status == "" {
		n.Status = notifications.StatusPending
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	return n
}

func (s *Storage) Get(ctx context.Context, id string) (notifications.Notification, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+columns+" FROM notifications WHERE id = $1 AND deleted_at IS NULL", id)
	n, err := scanNotification(row)
	return n, storeError("get", err)
}

func (s *Storage) List(ctx context.Context, filter notifications.ListFilter) (notifications.ListResult, error) {
	filter = filter.Normalize()
	w := listWhere(filter)

	var total, unread int
	if err := s.db.QueryRow(ctx,
		"SELECT count(*), count(*) FILTER (WHERE "+unreadCond+") FROM notifications WHERE "+w.sql(),
		w.args...,
	).Scan(&total, &unread); err != nil {
		return notifications.ListResult{}, storeError("list", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	args := append(w.args, filter.Limit, offset)
	query := fmt.Sprintf("SELECT %s FROM notifications WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d",
		columns, w.sql(), orderBy(filter), len(args)-1, len(args))

	items, err := s.query(ctx, query, args...)
	if err != nil {
		return notifications.ListResult{}, storeError("list", err)
	}
	return notifications.ListResult{
		Notifications: items,
		Total:         total,
		HasMore:       offset+len(items) < total,
		UnreadCount:   unread,
		Page:          filter.Page,
		Limit:         filter.Limit,
	}, nil
}

func (s *Storage) query(ctx context.Context, sql string, args ...any) ([]notifications.Notification, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notifications.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// update runs an UPDATE ... RETURNING on one live notification.
func (s *Storage) update(ctx context.Context, op, set, id string, args ...any) (notifications.Notification, error) {
	args = append(args, s.clock.Now().UTC(), id)
	query := fmt.Sprintf("UPDATE notifications SET %s, updated_at = $%d WHERE id = $%d AND deleted_at IS NULL RETURNING %s",
		set, len(args)-1, len(args), columns)
	n, err := scanNotification(s.db.QueryRow(ctx, query, args...))
	return n, storeError(op, err)
}

func (s *Storage) MarkRead(ctx context.Context, id string, readAt time.Time) (notifications.Notification, error) {
	return s.update(ctx, "mark read",
		"status = 'read', read_at = COALESCE(read_at, $1)", id, readAt)
}

func (s *Storage) MarkAllRead(ctx context.Context, params notifications.MarkAllReadParams) (int, error) {
	w := markAllReadWhere(params)
	readAt := params.ReadAt
	if readAt.IsZero() {
		readAt = s.clock.Now().UTC()
	}
	args := append(w.args, readAt)
	tag, err := s.db.Exec(ctx, fmt.Sprintf(
		"UPDATE notifications SET status = 'read', read_at = $%d, updated_at = $%d WHERE %s",
		len(args), len(args), w.sql()), args...)
	if err != nil {
		return 0, storeError("mark all read", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Storage) Dismiss(ctx context.Context, id, reason string, dismissedAt time.Time) (notifications.Notification, error) {
	return s.update(ctx, "dismiss",
		"status = 'dismissed', dismiss_reason = $1, dismissed_at = $2", id, reason, dismissedAt)
}

// UpdateStatus appends the delivery results in the same statement, so
// concurrent settles never drop each other's results.
func (s *Storage) UpdateStatus(ctx context.Context, id string, u notifications.StatusUpdate) (notifications.Notification, error) {
	results, err := jsonArg(nonNil(u.Results))
	if err != nil {
		return notifications.Notification{}, storeError("update status", err)
	}
	if u.Status == "" {
		return s.update(ctx, "update status",
			"delivery_results = delivery_results || $1::jsonb", id, results)
	}
	return s.update(ctx, "update status",
		"status = $1, delivery_results = delivery_results || $2::jsonb", id, string(u.Status), results)
}

// IncrementAttempts bumps the counter only while it is below limit. When the
// cap is reached the current count is read back and false is returned.
func (s *Storage) IncrementAttempts(ctx context.Context, id string, limit int) (int, bool, error) {
	var attempts int
	err := s.db.QueryRow(ctx,
		"UPDATE notifications SET attempts = attempts + 1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL AND attempts < $3 RETURNING attempts",
		s.clock.Now().UTC(), id, limit,
	).Scan(&attempts)
	if err == nil {
		return attempts, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, storeError("increment attempts", err)
	}
	err = s.db.QueryRow(ctx,
		"SELECT attempts FROM notifications WHERE id = $1 AND deleted_at IS NULL", id,
	).Scan(&attempts)
	if err != nil {
		return 0, false, storeError("increment attempts", err)
	}
	return attempts, false, nil
}

func (s *Storage) Delete(ctx context.Context, id, reason string, deletedAt time.Time) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE notifications SET deleted_at = $1, delete_reason = $2, updated_at = $1 WHERE id = $3 AND deleted_at IS NULL",
		deletedAt, reason, id)
	if err != nil {
		return storeError("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", notifications.ErrNotificationNotFound, id)
	}
	return nil
}

// BulkCreate inserts every valid notification in a single statement inside
// a transaction. A failing batch reports the error on every item.
func (s *Storage) BulkCreate(ctx context.Context, req notifications.BulkCreateRequest) ([]notifications.BulkItemResult, error) {
	results := make([]notifications.BulkItemResult, len(req.Notifications))
	var (
		args []any
		rows []int
	)
	for i, n := range req.Notifications {
		results[i].Index = i
		if len(n.DeliveryChannels) == 0 && len(req.DeliveryChannels) > 0 {
			n.DeliveryChannels = req.DeliveryChannels
		}
		n = s.defaults(n)
		row, err := insertArgs(n)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		results[i].ID = n.ID
		args = append(args, row...)
		rows = append(rows, i)
	}
	if len(rows) == 0 {
		return results, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, storeError("bulk create", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		"INSERT INTO notifications ("+columns+") VALUES "+placeholders(len(rows), insertColumns, 0),
		args...); err != nil {
		return nil, storeError("bulk create", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storeError("bulk create", err)
	}
	for _, i := range rows {
		results[i].Success = true
	}
	return results, nil
}

func (s *Storage) Stats(ctx context.Context, q notifications.StatsQuery) (notifications.Stats, error) {
	q = q.Normalize()
	w := newWhere()
	if q.UserID != "" {
		w.add("recipient_id = ?", q.UserID)
	}
	if !q.DateFrom.IsZero() {
		w.add("created_at >= ?", q.DateFrom)
	}
	if !q.DateTo.IsZero() {
		w.add("created_at <= ?", q.DateTo)
	}
	items, err := s.query(ctx, "SELECT "+columns+" FROM notifications WHERE "+w.sql(), w.args...)
	if err != nil {
		return notifications.Stats{}, storeError("stats", err)
	}
	return notifications.AggregateStats(items, q), nil
}

func (s *Storage) RegisterPushSubscription(ctx context.Context, userID string, sub notifications.PushSubscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.clock.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			endpoint = EXCLUDED.endpoint, p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth,
			token = EXCLUDED.token, created_at = EXCLUDED.created_at`,
		userID, sub.Endpoint, sub.P256dh, sub.Auth, sub.Token, sub.CreatedAt)
	return storeError("push subscribe", err)
}

// PushSubscription implements notifications.SubscriptionStore.
func (s *Storage) PushSubscription(ctx context.Context, userID string) (notifications.PushSubscription, bool, error) {
	var sub notifications.PushSubscription
	err := s.db.QueryRow(ctx,
		"SELECT endpoint, p256dh, auth, token, created_at FROM push_subscriptions WHERE user_id = $1", userID,
	).Scan(&sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.Token, &sub.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return notifications.PushSubscription{}, false, nil
	}
	if err != nil {
		return notifications.PushSubscription{}, false, storeError("push subscription", err)
	}
	return sub, true, nil
}

func (s *Storage) VAPIDKey(context.Context) (string, error) {
	if s.vapidKey == "" {
		return "", fmt.Errorf("%w: no vapid key configured", notifications.ErrNotSupported)
	}
	return s.vapidKey, nil
}

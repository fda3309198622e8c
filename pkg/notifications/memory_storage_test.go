package notifications_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

var baseTime = time.Date(2026, 4, 6, 10, 0, 0, 0, time.UTC)

func seedStorage(t *testing.T, s *notifications.MemoryStorage, items ...notifications.Notification) []notifications.Notification {
	t.Helper()
	out := make([]notifications.Notification, len(items))
	for i, n := range items {
		stored, err := s.Create(context.Background(), n)
		require.NoError(t, err)
		out[i] = stored
	}
	return out
}

func TestMemoryStorage_Create(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(baseTime)
	s := notifications.NewMemoryStorage(notifications.WithStorageClock(clock))
	ctx := context.Background()

	n, err := s.Create(ctx, validNotification())
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, notifications.StatusPending, n.Status)
	assert.Equal(t, baseTime, n.CreatedAt)

	_, err = s.Create(ctx, n)
	assert.Error(t, err, "duplicate id")

	_, err = s.Create(ctx, notifications.Notification{Title: "no recipient"})
	assert.ErrorIs(t, err, notifications.ErrValidation)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, notifications.ErrNotificationNotFound)
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	t.Parallel()

	s := notifications.NewMemoryStorage()
	ctx := context.Background()

	in := validNotification()
	in.Data = map[string]any{"k": "v"}
	stored, err := s.Create(ctx, in)
	require.NoError(t, err)

	stored.Data["k"] = "changed"
	got, err := s.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "v", got.Data["k"])
}

func TestMemoryStorage_List(t *testing.T) {
	t.Parallel()

	s := notifications.NewMemoryStorage()
	ctx := context.Background()

	var items []notifications.Notification
	for i := range 25 {
		n := validNotification()
		n.ID = fmt.Sprintf("n%02d", i)
		n.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
		n.Priority = notifications.PriorityNormal
		if i%5 == 0 {
			n.Priority = notifications.PriorityCritical
			n.Type = notifications.TypeEmergency
		}
		items = append(items, n)
	}
	other := validNotification()
	other.RecipientID = "user_2"
	items = append(items, other)
	seedStorage(t, s, items...)

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		res, err := s.List(ctx, notifications.ListFilter{UserID: "user_1"})
		require.NoError(t, err)
		assert.Equal(t, 25, res.Total)
		assert.Equal(t, 25, res.UnreadCount)
		assert.Len(t, res.Notifications, 20)
		assert.True(t, res.HasMore)
		assert.Equal(t, 1, res.Page)
		assert.Equal(t, 20, res.Limit)
		assert.Equal(t, "n24", res.Notifications[0].ID, "newest first")
	})

	t.Run("second page", func(t *testing.T) {
		t.Parallel()

		res, err := s.List(ctx, notifications.ListFilter{UserID: "user_1", Page: 2})
		require.NoError(t, err)
		assert.Len(t, res.Notifications, 5)
		assert.False(t, res.HasMore)
	})

	t.Run("ascending", func(t *testing.T) {
		t.Parallel()

		res, err := s.List(ctx, notifications.ListFilter{UserID: "user_1", SortOrder: notifications.SortAsc, Limit: 3})
		require.NoError(t, err)
		require.Len(t, res.Notifications, 3)
		assert.Equal(t, "n00", res.Notifications[0].ID)
	})

	t.Run("by priority", func(t *testing.T) {
		t.Parallel()

		res, err := s.List(ctx, notifications.ListFilter{UserID: "user_1", SortBy: notifications.SortByPriority, Limit: 5})
		require.NoError(t, err)
		for _, n := range res.Notifications {
			assert.Equal(t, notifications.PriorityCritical, n.Priority)
		}
	})

	t.Run("type filter", func(t *testing.T) {
		t.Parallel()

		res, err := s.List(ctx, notifications.ListFilter{Type: notifications.TypeEmergency})
		require.NoError(t, err)
		assert.Equal(t, 5, res.Total)
	})

	t.Run("limit capped", func(t *testing.T) {
		t.Parallel()

		res, err := s.List(ctx, notifications.ListFilter{Limit: 1000})
		require.NoError(t, err)
		assert.Equal(t, 100, res.Limit)
	})
}

func TestMemoryStorage_MarkRead(t *testing.T) {
	t.Parallel()

	s := notifications.NewMemoryStorage()
	ctx := context.Background()
	n := seedStorage(t, s, validNotification())[0]

	first, err := s.MarkRead(ctx, n.ID, baseTime)
	require.NoError(t, err)
	second, err := s.MarkRead(ctx, n.ID, baseTime.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, notifications.StatusRead, second.Status)
	require.NotNil(t, second.ReadAt)
	assert.Equal(t, *first.ReadAt, *second.ReadAt)
}

func TestMemoryStorage_MarkAllRead(t *testing.T) {
	t.Parallel()

	s := notifications.NewMemoryStorage()
	ctx := context.Background()

	msg := validNotification()
	msg.Status = notifications.StatusDelivered
	msg.Category = notifications.CategoryMessages
	pay := validNotification()
	pay.Status = notifications.StatusSent
	pay.Category = notifications.CategoryPaymentAlerts
	done := validNotification()
	done.Status = notifications.StatusDismissed
	other := validNotification()
	other.RecipientID = "user_2"
	queued := validNotification()
	queued.Status = notifications.StatusPending
	seeded := seedStorage(t, s, msg, pay, done, other, queued)

	count, err := s.MarkAllRead(ctx, notifications.MarkAllReadParams{UserID: "user_1", Category: notifications.CategoryMessages, ReadAt: baseTime})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = s.MarkAllRead(ctx, notifications.MarkAllReadParams{UserID: "user_1", ReadAt: baseTime})
	require.NoError(t, err)
	assert.Equal(t, 1, count, "dismissed, pending and already read are skipped")

	res, err := s.List(ctx, notifications.ListFilter{UserID: "user_2"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.UnreadCount)

	stillQueued, err := s.Get(ctx, seeded[4].ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusPending, stillQueued.Status)
	assert.Nil(t, stillQueued.ReadAt)
}

func TestMemoryStorage_StatusAndAttempts(t *testing.T) {
	t.Parallel()

	s := notifications.NewMemoryStorage()
	ctx := context.Background()
	n := seedStorage(t, s, validNotification())[0]

	attempts, ok, err := s.IncrementAttempts(ctx, n.ID, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, attempts)

	attempts, ok, err = s.IncrementAttempts(ctx, n.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok, "counter is capped")
	assert.Equal(t, 1, attempts)

	_, _, err = s.IncrementAttempts(ctx, "missing", 1)
	assert.ErrorIs(t, err, notifications.ErrNotificationNotFound)

	res := notifications.DeliveryResult{Channel: notifications.ChannelEmail, Status: notifications.DeliveryFailed, Attempt: 1}
	got, err := s.UpdateStatus(ctx, n.ID, notifications.StatusUpdate{Results: []notifications.DeliveryResult{res}})
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusPending, got.Status, "empty status keeps the current one")
	assert.Len(t, got.DeliveryResults, 1)

	got, err = s.UpdateStatus(ctx, n.ID, notifications.StatusUpdate{Status: notifications.StatusFailed, Results: []notifications.DeliveryResult{res}})
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusFailed, got.Status)
	assert.Len(t, got.DeliveryResults, 2, "results are appended")

	dismissed, err := s.Dismiss(ctx, n.ID, "user_action", baseTime)
	require.NoError(t, err)
	assert.Equal(t, "user_action", dismissed.DismissReason)

	require.NoError(t, s.Delete(ctx, n.ID, "user_request", baseTime))
	assert.ErrorIs(t, s.Delete(ctx, n.ID, "user_request", baseTime), notifications.ErrNotificationNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStorage_BulkCreate(t *testing.T) {
	t.Parallel()

	s := notifications.NewMemoryStorage()
	ctx := context.Background()

	bad := validNotification()
	bad.RecipientID = ""
	results, err := s.BulkCreate(ctx, notifications.BulkCreateRequest{
		Notifications:    []notifications.Notification{validNotification(), bad, validNotification()},
		DeliveryChannels: []notifications.Channel{notifications.ChannelEmail},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.NotEmpty(t, results[1].Error)
	assert.True(t, results[2].Success)
	assert.Equal(t, []int{3}, s.BulkCalls())

	got, err := s.Get(ctx, results[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []notifications.Channel{notifications.ChannelEmail}, got.DeliveryChannels)
}

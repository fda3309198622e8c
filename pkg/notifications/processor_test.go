package notifications_test

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func createScheduled(t *testing.T, f serviceFixture, modify func(*notifications.Notification)) notifications.Notification {
	t.Helper()
	n := validNotification()
	if modify != nil {
		modify(&n)
	}
	created, err := f.svc.CreateNotification(context.Background(), n, notifications.CreateOptions{ScheduleDelivery: true})
	require.NoError(t, err)
	return created
}

func TestProcessor_PendingSweep(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	var old []notifications.Notification
	for range 3 {
		old = append(old, createScheduled(t, f, nil))
	}
	f.clock.Advance(2 * time.Minute)
	fresh := createScheduled(t, f, nil)

	p := f.svc.Processor(notifications.WithPendingGrace(time.Minute), notifications.WithSweepPageSize(2))

	report, err := p.RunPendingSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, notifications.SweepReport{Scanned: 3, Processed: 3}, report)
	for _, n := range old {
		assert.Equal(t, notifications.StatusSent, f.stored(t, n.ID).Status)
	}
	assert.Equal(t, notifications.StatusPending, f.stored(t, fresh.ID).Status, "inside the grace period")

	report, err = p.RunPendingSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed, "second run finds nothing new")
	for _, n := range old {
		assert.Len(t, f.stored(t, n.ID).DeliveryResults, 1)
	}
}

func TestProcessor_PendingSweepSkipsRetries(t *testing.T) {
	t.Parallel()

	email := &stubAdapter{channel: notifications.ChannelEmail, err: errProviderDown}
	f := newServiceFixture(t, notifications.WithChannels(email))
	ctx := context.Background()

	n := validNotification()
	n.DeliveryChannels = []notifications.Channel{notifications.ChannelEmail}
	created, err := f.svc.CreateNotification(ctx, n, notifications.CreateOptions{
		RetryPolicy: notifications.RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour},
	})
	require.NoError(t, err)
	require.Equal(t, notifications.StatusPending, created.Status)

	f.clock.Advance(2 * time.Minute)
	report, err := f.svc.Processor().RunPendingSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, notifications.SweepReport{Scanned: 1, Skipped: 1}, report)
	assert.Equal(t, int32(1), email.calls.Load())
}

// lockedBuffer collects log output written from any goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProcessor_ExpirationSweep(t *testing.T) {
	t.Parallel()

	logs := &lockedBuffer{}
	f := newServiceFixture(t, notifications.WithLogger(
		slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	))
	ctx := context.Background()

	shortLived := createScheduled(t, f, func(n *notifications.Notification) {
		n.ExpiresAt = baseTime.Add(time.Hour)
	})
	longLived := createScheduled(t, f, nil)
	read, err := f.svc.CreateNotification(ctx, func() notifications.Notification {
		n := validNotification()
		n.ExpiresAt = baseTime.Add(time.Hour)
		return n
	}(), notifications.CreateOptions{})
	require.NoError(t, err)
	_, err = f.svc.MarkAsRead(ctx, read.ID)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	p := f.svc.Processor()

	report, err := p.RunExpirationSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, notifications.SweepReport{Scanned: 2, Processed: 1, Skipped: 1}, report)
	assert.Equal(t, notifications.StatusExpired, f.stored(t, shortLived.ID).Status)
	assert.Equal(t, notifications.StatusPending, f.stored(t, longLived.ID).Status)
	assert.Equal(t, notifications.StatusRead, f.stored(t, read.ID).Status, "terminal notifications keep their status")
	assert.True(t, slices.ContainsFunc(strings.Split(logs.String(), "\n"), func(line string) bool {
		return strings.Contains(line, `"msg":"expiration sweep: skipped"`) &&
			strings.Contains(line, `"notification_id":"`+read.ID+`"`) &&
			strings.Contains(line, `"status":"read"`)
	}), "terminal items are logged when skipped")

	report, err = p.RunExpirationSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Equal(t, notifications.StatusExpired, f.stored(t, shortLived.ID).Status)
}

type blockingAdapter struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (a *blockingAdapter) Channel() notifications.Channel { return notifications.ChannelPush }

func (a *blockingAdapter) Deliver(ctx context.Context, _ notifications.Notification) (notifications.Outcome, error) {
	a.once.Do(func() { close(a.entered) })
	select {
	case <-a.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return notifications.OutcomeHandedOff, nil
}

func TestProcessor_SweepInProgress(t *testing.T) {
	t.Parallel()

	blocker := &blockingAdapter{entered: make(chan struct{}), release: make(chan struct{})}
	f := newServiceFixture(t, notifications.WithChannels(blocker))
	ctx := context.Background()

	createScheduled(t, f, func(n *notifications.Notification) {
		n.DeliveryChannels = []notifications.Channel{notifications.ChannelPush}
	})
	f.clock.Advance(2 * time.Minute)

	p := f.svc.Processor()
	done := make(chan error, 1)
	go func() {
		_, err := p.RunPendingSweep(ctx)
		done <- err
	}()

	select {
	case <-blocker.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not reach the adapter")
	}

	_, err := p.RunPendingSweep(ctx)
	assert.ErrorIs(t, err, notifications.ErrSweepInProgress)

	_, err = p.RunExpirationSweep(ctx)
	assert.NoError(t, err, "the sweeps do not block each other")

	close(blocker.release)
	require.NoError(t, <-done)
}

type sweepingStorage struct {
	*notifications.MemoryStorage
}

func (sweepingStorage) ProcessPending(context.Context) (notifications.ProcessPendingResult, error) {
	return notifications.ProcessPendingResult{ProcessedCount: 4, FailedCount: 1}, nil
}

func (sweepingStorage) CleanupExpired(context.Context) (notifications.CleanupResult, error) {
	return notifications.CleanupResult{CleanedCount: 2}, nil
}

func TestProcessor_RemoteSweeps(t *testing.T) {
	t.Parallel()

	svc, err := notifications.NewService(sweepingStorage{notifications.NewMemoryStorage()},
		notifications.WithLogger(discardLogger()))
	require.NoError(t, err)
	defer svc.Close()

	ctx := context.Background()
	p := svc.Processor(notifications.WithRemoteSweeps())

	pending, err := p.RunPendingSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, notifications.SweepReport{Scanned: 5, Processed: 4, Failed: 1}, pending)

	expired, err := p.RunExpirationSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, notifications.SweepReport{Scanned: 2, Processed: 2}, expired)
}

func TestProcessor_StartStop(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	p := f.svc.Processor(
		notifications.WithPendingInterval(time.Minute),
		notifications.WithExpirationInterval(time.Hour),
	)

	require.NoError(t, p.Start(context.Background()))
	assert.NoError(t, p.Stop())
}

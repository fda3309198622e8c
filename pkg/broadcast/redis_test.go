package broadcast_test

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
)

func TestRedisBroadcaster(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	prefix := "notifykit:test:" + t.Name() + ":"

	// Two relays on one prefix stand in for two replicas.
	a, err := broadcast.NewRedisBroadcaster[alert](ctx, client, broadcast.WithChannelPrefix(prefix))
	require.NoError(t, err)
	defer a.Close()
	b, err := broadcast.NewRedisBroadcaster[alert](ctx, client, broadcast.WithChannelPrefix(prefix))
	require.NoError(t, err)
	defer b.Close()

	sub := b.Subscribe(ctx, "user_1")
	defer sub.Close()
	assert.Equal(t, 1, b.Subscribers("user_1"))
	assert.Zero(t, a.Subscribers("user_1"))

	require.NoError(t, a.Publish(ctx, "user_1", alert{ID: "n1", Title: "relayed"}))

	select {
	case msg := <-sub.Receive(ctx):
		assert.Equal(t, "user_1", msg.Topic)
		assert.Equal(t, alert{ID: "n1", Title: "relayed"}, msg.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("message not relayed")
	}
}

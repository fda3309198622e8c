// Package broadcast fans messages out to live subscribers grouped by topic.
//
// Hub is the in-process implementation. Publishing never blocks: a
// subscriber whose buffer is full misses the message and the drop is
// counted. RedisBroadcaster relays publishes through Redis pub/sub so that
// subscribers connected to any replica receive them.
//
//	hub := broadcast.NewHub[Notification](16)
//	defer hub.Close()
//
//	sub := hub.Subscribe(ctx, "user_42")
//	defer sub.Close()
//
//	_ = hub.Publish(ctx, "user_42", n)
//	msg := <-sub.Receive(ctx)
//
// Subscriptions end when their context is cancelled, when Close is called on
// them, or when the broadcaster is closed; the receive channel is closed in
// every case.
package broadcast

// Package notifications is a notification delivery engine: it creates,
// stores, delivers and tracks user notifications over several channels.
//
// # Architecture
//
//   - Storage: persistence behind one interface (HTTPStorage for a remote
//     store, MemoryStorage for development, pgstorage for PostgreSQL).
//     CachedStorage adds a tag-invalidated read cache in front of any of them.
//   - ChannelAdapter: one per delivery medium (in-app, email, SMS, push,
//     webhook), registered in a ChannelRegistry.
//   - Dispatcher: fans a notification out to its channels concurrently and
//     settles the lifecycle from the combined outcome.
//   - RetryScheduler: exponential backoff redelivery through a Deferrer
//     (in-process timers, or asynq via the asynqretry package).
//   - Processor: periodic pending and expiration sweeps on gocron.
//   - Service: the facade tying everything together.
//
// # Lifecycle
//
// A notification starts pending. Handing it off to at least one channel
// makes it sent, a confirmed delivery makes it delivered. Read, dismissed,
// failed and expired are terminal.
//
//	pending ──dispatch──▶ sent ──confirm──▶ delivered ──read──▶ read
//	   │                   │                  │
//	   └──────── dismiss / fail / expire ─────┘
//
// # Basic Usage
//
//	storage := notifications.NewHTTPStorage("https://api.example.com",
//	    notifications.WithAuthToken(token))
//	defer storage.Close()
//
//	svc, err := notifications.NewService(storage,
//	    notifications.WithLogger(log),
//	    notifications.WithEncryptionGate(gate),
//	)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//
//	n, err := svc.CreateNotification(ctx, notifications.Notification{
//	    RecipientID:  "user_42",
//	    Template:     "appointment_reminder",
//	    TemplateData: map[string]any{"providerName": "Dr. Smith", "startsAt": startsAt},
//	}, notifications.CreateOptions{
//	    Channels: []notifications.Channel{notifications.ChannelInApp, notifications.ChannelEmail},
//	})
//
// # Background Processing
//
//	proc := svc.Processor(notifications.WithPendingInterval(5 * time.Minute))
//	if err := proc.Start(ctx); err != nil {
//	    return err
//	}
//	defer proc.Stop()
//
// # Live In-App Stream
//
//	sub, err := svc.Subscribe(r.Context(), userID)
//	if err != nil {
//	    return err
//	}
//	defer sub.Close()
//	for msg := range sub.Receive(r.Context()) {
//	    // write msg.Data to the client
//	}
//
// # Error Handling
//
// Validation failures match ErrValidation and carry field messages in a
// *ValidationError. Store failures are *StoreError values matching ErrStore.
// Channel failures never fail a create; they are recorded as delivery
// results and retried when IsRetryable reports so.
package notifications

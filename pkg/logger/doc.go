// Package logger provides a context-aware wrapper around Go's slog package
// adding functional options for configuration, helper attribute constructors,
// and transparent injection of values stored in context.Context.
//
// New creates a *slog.Logger configured by Option functions. The options
// select an output format (text or json), set the minimum level, attach
// static attributes and register ContextExtractor callbacks. NewFromConfig
// does the same from an env-loaded Config, including optional size-rotated
// file output.
//
// # Architecture
//
// New picks slog.NewTextHandler or slog.NewJSONHandler based on the Format
// and wraps it with NewContextHandler, which runs the registered
// ContextExtractor callbacks before delegating to the underlying handler.
//
// Helper constructors such as NotificationID, Channel, Status and Error live
// in attr.go and keep attribute naming consistent across the engine.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment("development", "notifyd"),
//	    logger.WithContextExtractors(logger.NotificationExtractor),
//	)
//	logger.SetAsDefault(log)
//
//	ctx = logger.ContextWithNotificationID(ctx, n.ID)
//	log.InfoContext(ctx, "delivered",
//	    logger.Channel("email"),
//	    logger.Duration(time.Since(start)),
//	)
//
// # Redaction
//
// Attributes named in DefaultRedactedKeys, or added with WithRedactedKeys or
// LOG_REDACT_KEYS, are replaced with RedactedValue regardless of case.
//
// # Error Handling
//
// Error, NotificationID and UserID produce an empty attribute for a zero
// value, which slog drops, so
//
//	log.Info("operation finished", logger.Error(err))
//
// needs no nil check.
package logger

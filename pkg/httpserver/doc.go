// Package httpserver runs the HTTP API of a notifykit deployment.
//
// Server wraps http.Server with context-driven graceful shutdown and
// shutdown hooks, so long-lived responses such as event streams can be
// ended before the listener drains. Health builds liveness and readiness
// handlers from named dependency checks.
//
//	srv := httpserver.New(cfg, router,
//	    httpserver.WithLogger(log),
//	    httpserver.WithOnShutdown(streams.Close),
//	)
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	if err := srv.Run(ctx); err != nil {
//	    log.Error("server stopped", logger.Error(err))
//	}
//
// Configuration comes from HTTP_* environment variables through Config.
// WriteTimeout defaults to zero because event streams stay open; handlers
// that need a deadline set one through http.ResponseController.
package httpserver

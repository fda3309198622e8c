package asynqretry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Worker consumes retry tasks from Redis and hands them to a Deferrer.
type Worker struct {
	server   *asynq.Server
	deferrer *Deferrer
}

// WorkerOption configures the asynq server.
type WorkerOption func(*asynq.Config)

func WithConcurrency(n int) WorkerOption {
	return func(c *asynq.Config) {
		if n > 0 {
			c.Concurrency = n
		}
	}
}

func NewWorker(redisOpt asynq.RedisConnOpt, d *Deferrer, opts ...WorkerOption) *Worker {
	log := d.logger
	cfg := asynq.Config{
		Concurrency: 10,
		Queues:      map[string]int{d.queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.LogAttrs(ctx, slog.LevelError, "retry task failed",
				slog.String("type", task.Type()),
				logger.Error(err),
			)
		}),
		Logger:   newLogger(log),
		LogLevel: asynq.WarnLevel,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{server: asynq.NewServer(redisOpt, cfg), deferrer: d}
}

// Start registers the retry handler and starts processing in the background.
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskRetry, w.deferrer.Process)
	if err := w.server.Start(mux); err != nil {
		return fmt.Errorf("start retry worker: %w", err)
	}
	return nil
}

// Shutdown waits for active tasks and stops the server.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// slogAdapter implements asynq.Logger.
type slogAdapter struct {
	log *slog.Logger
}

func newLogger(l *slog.Logger) asynq.Logger {
	return &slogAdapter{log: l}
}

func (a *slogAdapter) Debug(args ...any) { a.log.Debug(fmt.Sprint(args...)) }
func (a *slogAdapter) Info(args ...any)  { a.log.Info(fmt.Sprint(args...)) }
func (a *slogAdapter) Warn(args ...any)  { a.log.Warn(fmt.Sprint(args...)) }
func (a *slogAdapter) Error(args ...any) { a.log.Error(fmt.Sprint(args...)) }
func (a *slogAdapter) Fatal(args ...any) { a.log.Error(fmt.Sprint(args...), slog.Bool("fatal", true)) }

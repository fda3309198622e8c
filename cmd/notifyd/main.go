// Command notifyd runs the notification engine as an HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifykit/internal/api"
	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/cache"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/fcm"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/notifications/asynqretry"
	"github.com/dmitrymomot/notifykit/pkg/notifications/pgstorage"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/redis"
	"github.com/dmitrymomot/notifykit/pkg/secrets"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "notifyd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.NewFromConfig(cfg.Logger,
		logger.WithContextExtractors(api.RequestIDExtractor, logger.NotificationExtractor, logger.UserExtractor),
	)
	if err != nil {
		return err
	}
	logger.SetAsDefault(log)

	var (
		opts    []notifications.ServiceOption
		checks  []api.Option
		closers []func()
	)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()
	opts = append(opts, notifications.WithLogger(log), notifications.WithSMSRate(cfg.SMSRate))

	store, pgStore, err := openStore(ctx, cfg, log, &closers, &checks)
	if err != nil {
		return err
	}

	var rdb *goredis.Client
	if cfg.needsRedis() {
		rdb, err = redis.Connect(ctx, cfg.Redis, log)
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		checks = append(checks, api.WithReadinessCheck("redis", redis.Check(rdb)))
	}

	switch cfg.CacheBackend {
	case cacheRedis:
		opts = append(opts, notifications.WithCache(cache.NewRedisCache(rdb, cache.WithKeyPrefix("notifyd:"))))
	default:
		opts = append(opts, notifications.WithCache(cache.NewTaggedCache(cfg.CacheSize)))
	}

	inAppOpts := []notifications.InAppOption{notifications.WithInAppLogger(log)}
	if rdb != nil {
		rb, err := broadcast.NewRedisBroadcaster[notifications.Notification](ctx, rdb, broadcast.WithLogger(log))
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = rb.Close() })
		inAppOpts = append(inAppOpts, notifications.WithBroadcaster(rb))
	}
	adapters := []notifications.ChannelAdapter{
		notifications.NewInAppAdapter(notifications.DefaultInAppBuffer, inAppOpts...),
	}

	if cfg.EmailEnabled {
		sender, err := email.New(cfg.Email)
		if err != nil {
			return err
		}
		adapters = append(adapters, notifications.NewEmailAdapter(sender, nil))
	}

	if cfg.FCM.CredentialsFile != "" {
		push, err := fcm.NewFromConfig(ctx, cfg.FCM)
		if err != nil {
			return err
		}
		pushOpts := []notifications.PushOption{notifications.WithPushLogger(log)}
		if pgStore != nil {
			pushOpts = append(pushOpts,
				notifications.WithSubscriptionStore(pgStore),
				notifications.WithPushRegistry(pgStore),
			)
		} else {
			pushOpts = append(pushOpts, notifications.WithSubscriptionStore(notifications.NewPushSubscriptions()))
		}
		adapters = append(adapters, notifications.NewPushAdapter(nil, notifications.NewFCMSender(push), pushOpts...))
	}

	if cfg.WebhookURL != "" {
		adapters = append(adapters, notifications.NewWebhookAdapter(cfg.WebhookURL,
			notifications.WithWebhookSecret(cfg.WebhookSecret)))
	}
	opts = append(opts, notifications.WithChannels(adapters...))

	if cfg.AppKey != "" {
		key, err := secrets.ParseKey(cfg.AppKey)
		if err != nil {
			return fmt.Errorf("NOTIFY_APP_KEY: %w", err)
		}
		gate, err := notifications.NewSecretsGate(key)
		if err != nil {
			return err
		}
		opts = append(opts, notifications.WithEncryptionGate(gate))
	} else {
		log.WarnContext(ctx, "NOTIFY_APP_KEY is empty, sensitive data is stored in plain text")
	}

	if cfg.TemplatesPath != "" {
		renderer, err := notifications.NewCatalogRenderer(notifications.WithCatalogFile(cfg.TemplatesPath))
		if err != nil {
			return err
		}
		opts = append(opts, notifications.WithTemplateRenderer(renderer))
	}

	var worker *asynqretry.Worker
	if cfg.RetryBackend == retryAsynq {
		redisOpt, err := redis.AsynqOpt(cfg.Redis)
		if err != nil {
			return err
		}
		deferrer := asynqretry.NewDeferrer(redisOpt, asynqretry.WithLogger(log))
		worker = asynqretry.NewWorker(redisOpt, deferrer, asynqretry.WithConcurrency(cfg.RetryConcurrency))
		opts = append(opts, notifications.WithDeferrer(deferrer))
	}

	svc, err := notifications.NewService(store, opts...)
	if err != nil {
		return err
	}
	closers = append(closers, func() {
		if err := svc.Close(); err != nil {
			log.Error("close service", logger.Error(err))
		}
	})

	if worker != nil {
		if err := worker.Start(); err != nil {
			return err
		}
		closers = append(closers, worker.Shutdown)
	}

	proc := svc.Processor(
		notifications.WithPendingInterval(cfg.PendingInterval),
		notifications.WithExpirationInterval(cfg.ExpirationInterval),
		notifications.WithPendingGrace(cfg.PendingGrace),
	)
	if err := proc.Start(ctx); err != nil {
		return err
	}

	a := api.New(svc, append(checks, api.WithLogger(log))...)
	srv := httpserver.New(cfg.HTTP, a.Routes(),
		httpserver.WithLogger(log),
		httpserver.WithOnShutdown(func(context.Context) error { return proc.Stop() }),
	)

	log.InfoContext(ctx, "notifyd starting",
		slog.String("addr", cfg.HTTP.Addr),
		slog.String("store", cfg.StoreBackend),
		slog.String("retry", cfg.RetryBackend),
		slog.String("cache", cfg.CacheBackend),
	)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openStore connects the configured notification store. The postgres
// backend also returns the concrete storage for push subscriptions.
func openStore(ctx context.Context, cfg Config, log *slog.Logger, closers *[]func(), checks *[]api.Option) (notifications.Storage, *pgstorage.Storage, error) {
	switch cfg.StoreBackend {
	case storePostgres:
		pool, err := pg.Connect(ctx, cfg.PG, log)
		if err != nil {
			return nil, nil, err
		}
		*closers = append(*closers, pool.Close)
		*checks = append(*checks, api.WithReadinessCheck("postgres", pg.Check(pool)))

		if err := pgstorage.Migrate(ctx, pool, cfg.PG.MigrationsTable, log); err != nil {
			return nil, nil, err
		}
		s := pgstorage.New(pool, pgstorage.WithVAPIDKey(cfg.VAPIDKey))
		return s, s, nil

	case storeHTTP:
		s := notifications.NewHTTPStorage(cfg.StoreURL, notifications.WithAuthToken(cfg.StoreToken))
		*closers = append(*closers, func() { _ = s.Close() })
		return s, nil, nil

	default:
		log.WarnContext(ctx, "using in-memory notification store, data is lost on restart")
		return notifications.NewMemoryStorage(), nil, nil
	}
}

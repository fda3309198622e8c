// Package api exposes the notification engine over HTTP as JSON.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

const (
	DefaultMaxBodyBytes  = 1 << 20
	DefaultStreamTimeout = 10 * time.Second
	DefaultHeartbeat     = 25 * time.Second
)

// API serves the /v1 routes for one Service.
type API struct {
	svc    *notifications.Service
	logger *slog.Logger

	checks        map[string]httpserver.Check
	maxBodyBytes  int64
	streamTimeout time.Duration
	heartbeat     time.Duration
}

type Option func(*API)

func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithReadinessCheck adds a dependency probe to /readyz.
func WithReadinessCheck(name string, check httpserver.Check) Option {
	return func(a *API) { a.checks[name] = check }
}

// WithMaxBodyBytes caps JSON request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// WithStreamTiming sets the per-event write deadline and the keep-alive
// interval of the live stream.
func WithStreamTiming(writeTimeout, heartbeat time.Duration) Option {
	return func(a *API) {
		if writeTimeout > 0 {
			a.streamTimeout = writeTimeout
		}
		if heartbeat > 0 {
			a.heartbeat = heartbeat
		}
	}
}

func New(svc *notifications.Service, opts ...Option) *API {
	a := &API{
		svc:           svc,
		logger:        slog.Default(),
		checks:        make(map[string]httpserver.Check),
		maxBodyBytes:  DefaultMaxBodyBytes,
		streamTimeout: DefaultStreamTimeout,
		heartbeat:     DefaultHeartbeat,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("api"))
	return a
}

// Routes builds the router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, a.accessLog, middleware.Recoverer)
	r.NotFound(a.handle(func(*http.Request) Response { return Fail(ErrNotFound) }))

	r.Get("/healthz", httpserver.Liveness)
	r.Get("/readyz", httpserver.Readiness(a.logger, 2*time.Second, a.checks))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/enums", a.handle(a.enumerations))
		r.Get("/engine", a.handle(a.engineStats))

		r.Route("/notifications", func(r chi.Router) {
			r.Post("/", a.handle(a.createNotification))
			r.Get("/", a.handle(a.listNotifications))
			r.Post("/bulk", a.handle(a.bulkCreate))
			r.Post("/read-all", a.handle(a.markAllRead))
			r.Get("/stats", a.handle(a.notificationStats))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.handle(a.getNotification))
				r.Delete("/", a.handle(a.deleteNotification))
				r.Post("/read", a.handle(a.markRead))
				r.Post("/dismiss", a.handle(a.dismiss))
				r.Post("/deliver", a.handle(a.deliver))
			})
		})

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/push", a.handle(a.enablePush))
			r.Get("/stream", a.stream)
		})
	})
	return r
}

// HandlerFunc answers one request.
type HandlerFunc func(r *http.Request) Response

func (a *API) handle(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := h(r)
		if resp == nil {
			resp = NoContent()
		}
		if f, ok := resp.(failure); ok {
			a.renderError(w, r, f.err)
			return
		}
		if err := resp.Render(w, r); err != nil {
			a.logger.LogAttrs(r.Context(), slog.LevelError, "render response", logger.Error(err))
		}
	}
}

func (a *API) renderError(w http.ResponseWriter, r *http.Request, err error) {
	info := classify(err)
	a.logger.LogAttrs(r.Context(), info.level, "request failed",
		logger.Error(err),
		slog.Int("status", info.status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	body := Envelope{Error: &ErrorDetail{
		Code:      info.code,
		Message:   info.message,
		Details:   info.details,
		RequestID: middleware.GetReqID(r.Context()),
	}}
	if werr := writeJSON(w, info.status, body); werr != nil {
		a.logger.LogAttrs(r.Context(), slog.LevelError, "render error response", logger.Error(werr))
	}
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		a.logger.LogAttrs(r.Context(), slog.LevelDebug, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			logger.Duration(time.Since(start)),
		)
	})
}

// RequestIDExtractor adds the chi request id to log records written with
// the request context.
func RequestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	id := middleware.GetReqID(ctx)
	if id == "" {
		return slog.Attr{}, false
	}
	return slog.String("request_id", id), true
}

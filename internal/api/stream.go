package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// stream pushes a user's in-app notifications as server-sent events until
// the client goes away.
func (a *API) stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")
	if _, ok := w.(http.Flusher); !ok {
		a.renderError(w, r, ErrStreamingUnsupported)
		return
	}

	sub, err := a.svc.Subscribe(ctx, userID)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		a.logger.LogAttrs(ctx, slog.LevelError, "stream flush", logger.Error(err))
		return
	}

	a.logger.LogAttrs(ctx, slog.LevelDebug, "stream opened", logger.UserID(userID))
	defer a.logger.LogAttrs(ctx, slog.LevelDebug, "stream closed", logger.UserID(userID))

	heartbeat := time.NewTicker(a.heartbeat)
	defer heartbeat.Stop()

	messages := sub.Receive(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := a.writeEvent(rc, w, ": ping\n\n"); err != nil {
				return
			}
		case msg, ok := <-messages:
			if !ok {
				return
			}
			data, err := json.Marshal(msg.Data)
			if err != nil {
				a.logger.LogAttrs(ctx, slog.LevelError, "encode stream event",
					logger.NotificationID(msg.Data.ID), logger.Error(err))
				continue
			}
			frame := fmt.Sprintf("id: %s\nevent: notification\ndata: %s\n\n", msg.Data.ID, data)
			if err := a.writeEvent(rc, w, frame); err != nil {
				a.logger.LogAttrs(ctx, slog.LevelDebug, "stream write failed",
					logger.UserID(userID), logger.Error(err))
				return
			}
		}
	}
}

func (a *API) writeEvent(rc *http.ResponseController, w http.ResponseWriter, frame string) error {
	if err := rc.SetWriteDeadline(time.Now().Add(a.streamTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := w.Write([]byte(frame)); err != nil {
		return err
	}
	return rc.Flush()
}

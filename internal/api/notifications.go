package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

type createRequest struct {
	Notification     notifications.Notification `json:"notification"`
	Channels         []notifications.Channel    `json:"channels,omitempty"`
	ScheduleDelivery bool                       `json:"scheduleDelivery,omitempty"`
	SkipEncryption   bool                       `json:"skipEncryption,omitempty"`
}

func (a *API) createNotification(r *http.Request) Response {
	var req createRequest
	if err := a.decode(r, &req); err != nil {
		return Fail(err)
	}
	n, err := a.svc.CreateNotification(r.Context(), req.Notification, notifications.CreateOptions{
		Channels:         req.Channels,
		ScheduleDelivery: req.ScheduleDelivery,
		SkipEncryption:   req.SkipEncryption,
	})
	if err != nil {
		return Fail(err)
	}
	return JSON(n, WithStatus(http.StatusCreated))
}

func (a *API) listNotifications(r *http.Request) Response {
	q := r.URL.Query()
	filter := notifications.ListFilter{
		UserID:    q.Get("userId"),
		Type:      notifications.Type(q.Get("type")),
		Category:  notifications.Category(q.Get("category")),
		Priority:  notifications.Priority(q.Get("priority")),
		Status:    notifications.Status(q.Get("status")),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}

	var err error
	if filter.UnreadOnly, err = queryBool(q, "unreadOnly"); err != nil {
		return Fail(err)
	}
	if filter.Page, err = queryInt(q, "page"); err != nil {
		return Fail(err)
	}
	if filter.Limit, err = queryInt(q, "limit"); err != nil {
		return Fail(err)
	}
	if filter.DateFrom, err = queryTime(q, "dateFrom"); err != nil {
		return Fail(err)
	}
	if filter.DateTo, err = queryTime(q, "dateTo"); err != nil {
		return Fail(err)
	}
	decrypt, err := queryBool(q, "decrypt")
	if err != nil {
		return Fail(err)
	}

	res, err := a.svc.GetNotifications(r.Context(), filter, decrypt)
	if err != nil {
		return Fail(err)
	}
	return JSON(res.Notifications, WithMeta(map[string]any{
		"total":       res.Total,
		"page":        res.Page,
		"limit":       res.Limit,
		"hasMore":     res.HasMore,
		"unreadCount": res.UnreadCount,
	}))
}

func (a *API) getNotification(r *http.Request) Response {
	decrypt, err := queryBool(r.URL.Query(), "decrypt")
	if err != nil {
		return Fail(err)
	}
	n, err := a.svc.GetNotification(r.Context(), chi.URLParam(r, "id"), decrypt)
	if err != nil {
		return Fail(err)
	}
	return JSON(n)
}

func (a *API) markRead(r *http.Request) Response {
	n, err := a.svc.MarkAsRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return Fail(err)
	}
	return JSON(n)
}

type markAllReadRequest struct {
	UserID   string                 `json:"userId"`
	Category notifications.Category `json:"category,omitempty"`
	Type     notifications.Type     `json:"type,omitempty"`
}

func (a *API) markAllRead(r *http.Request) Response {
	var req markAllReadRequest
	if err := a.decode(r, &req); err != nil {
		return Fail(err)
	}
	count, err := a.svc.MarkAllAsRead(r.Context(), req.UserID, req.Category, req.Type)
	if err != nil {
		return Fail(err)
	}
	return JSON(map[string]int{"updated": count})
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (a *API) dismiss(r *http.Request) Response {
	var req reasonRequest
	if err := a.decodeOptional(r, &req); err != nil {
		return Fail(err)
	}
	n, err := a.svc.DismissNotification(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		return Fail(err)
	}
	return JSON(n)
}

func (a *API) deleteNotification(r *http.Request) Response {
	if err := a.svc.DeleteNotification(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("reason")); err != nil {
		return Fail(err)
	}
	return NoContent()
}

type deliverRequest struct {
	Channels []notifications.Channel `json:"channels,omitempty"`
}

func (a *API) deliver(r *http.Request) Response {
	var req deliverRequest
	if err := a.decodeOptional(r, &req); err != nil {
		return Fail(err)
	}
	report, err := a.svc.DeliverNotification(r.Context(), chi.URLParam(r, "id"), req.Channels...)
	if err != nil {
		return Fail(err)
	}
	return JSON(report)
}

type bulkRequest struct {
	Notifications    []notifications.Notification `json:"notifications"`
	BatchSize        int                          `json:"batchSize,omitempty"`
	Channels         []notifications.Channel      `json:"channels,omitempty"`
	ScheduleDelivery bool                         `json:"scheduleDelivery,omitempty"`
	SkipEncryption   bool                         `json:"skipEncryption,omitempty"`
}

func (a *API) bulkCreate(r *http.Request) Response {
	var req bulkRequest
	if err := a.decode(r, &req); err != nil {
		return Fail(err)
	}
	report, err := a.svc.BulkCreate(r.Context(), req.Notifications, notifications.BulkOptions{
		BatchSize:        req.BatchSize,
		DeliveryChannels: req.Channels,
		ScheduleDelivery: req.ScheduleDelivery,
		SkipEncryption:   req.SkipEncryption,
	})
	if err != nil {
		return Fail(err)
	}
	status := http.StatusCreated
	if report.Failed > 0 {
		status = http.StatusMultiStatus
	}
	return JSON(report, WithStatus(status))
}

func (a *API) notificationStats(r *http.Request) Response {
	q := r.URL.Query()
	query := notifications.StatsQuery{UserID: q.Get("userId"), GroupBy: q.Get("groupBy")}
	var err error
	if query.DateFrom, err = queryTime(q, "dateFrom"); err != nil {
		return Fail(err)
	}
	if query.DateTo, err = queryTime(q, "dateTo"); err != nil {
		return Fail(err)
	}
	stats, err := a.svc.GetNotificationStats(r.Context(), query)
	if err != nil {
		return Fail(err)
	}
	return JSON(stats)
}

func (a *API) enablePush(r *http.Request) Response {
	sub, err := a.svc.EnablePush(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		return Fail(err)
	}
	return JSON(sub, WithStatus(http.StatusCreated))
}

func (a *API) enumerations(*http.Request) Response { return JSON(a.svc.Enumerations()) }

func (a *API) engineStats(*http.Request) Response { return JSON(a.svc.Stats()) }

// decode reads a required JSON body and rejects unknown fields.
func (a *API) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, a.maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("decode body: %w", err)
	}
	return nil
}

// decodeOptional is decode for endpoints where the body may be omitted.
func (a *API) decodeOptional(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return a.decode(r, v)
}

func queryBool(q url.Values, key string) (bool, error) {
	raw := q.Get(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badRequest("%s must be a boolean", key)
	}
	return v, nil
}

func queryInt(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, badRequest("%s must be a non-negative integer", key)
	}
	return v, nil
}

func queryTime(q url.Values, key string) (time.Time, error) {
	raw := q.Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, badRequest("%s must be an RFC 3339 timestamp", key)
	}
	return v, nil
}

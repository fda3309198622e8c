package pgstorage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

const columns = `id, recipient_id, sender_id, type, priority, category, title, body, data, actions,
	template, template_data, delivery_channels, status, attempts, retry_max, retry_base_ms,
	delivery_results, encryption_key_id, encrypted_fields, dismiss_reason,
	created_at, updated_at, read_at, dismissed_at, expires_at`

const insertColumns = 26

// Unread mirrors Notification.IsUnread.
const unreadCond = `read_at IS NULL AND status NOT IN ('read', 'dismissed')`

const priorityRank = `CASE priority
	WHEN 'low' THEN 0 WHEN 'normal' THEN 1 WHEN 'high' THEN 2
	WHEN 'urgent' THEN 3 WHEN 'critical' THEN 4 ELSE 1 END`

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(row scanner) (notifications.Notification, error) {
	var (
		n                                  notifications.Notification
		typ, priority, category, status    string
		data, actions, templateData        []byte
		channels, results, encryptedFields []byte
		retryMax                           int
		retryBaseMs                        int64
		expiresAt                          *time.Time
	)
	err := row.Scan(
		&n.ID, &n.RecipientID, &n.SenderID, &typ, &priority, &category, &n.Title, &n.Body,
		&data, &actions, &n.Template, &templateData, &channels, &status, &n.Attempts,
		&retryMax, &retryBaseMs, &results, &n.EncryptionKeyID, &encryptedFields, &n.DismissReason,
		&n.CreatedAt, &n.UpdatedAt, &n.ReadAt, &n.DismissedAt, &expiresAt,
	)
	if err != nil {
		return notifications.Notification{}, err
	}

	n.Type = notifications.Type(typ)
	n.Priority = notifications.Priority(priority)
	n.Category = notifications.Category(category)
	n.Status = notifications.Status(status)
	n.RetryPolicy = notifications.RetryPolicy{
		MaxRetries: retryMax,
		BaseDelay:  time.Duration(retryBaseMs) * time.Millisecond,
	}
	if expiresAt != nil {
		n.ExpiresAt = *expiresAt
	}

	for _, f := range []struct {
		raw  []byte
		dest any
	}{
		{data, &n.Data},
		{actions, &n.Actions},
		{templateData, &n.TemplateData},
		{channels, &n.DeliveryChannels},
		{results, &n.DeliveryResults},
		{encryptedFields, &n.EncryptedFields},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dest); err != nil {
			return notifications.Notification{}, fmt.Errorf("decode %s: %w", n.ID, err)
		}
	}
	return n, nil
}

func jsonArg(v any) ([]byte, error) {
	return json.Marshal(v)
}

// insertArgs returns the values of one row in column order.
func insertArgs(n notifications.Notification) ([]any, error) {
	encoded := make([][]byte, 0, 6)
	for _, v := range []any{
		n.Data, n.Actions, n.TemplateData,
		nonNil(n.DeliveryChannels), nonNil(n.DeliveryResults), n.EncryptedFields,
	} {
		b, err := jsonArg(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", n.ID, err)
		}
		encoded = append(encoded, b)
	}

	var expiresAt *time.Time
	if !n.ExpiresAt.IsZero() {
		expiresAt = &n.ExpiresAt
	}
	return []any{
		n.ID, n.RecipientID, n.SenderID, string(n.Type), string(n.Priority), string(n.Category),
		n.Title, n.Body, encoded[0], encoded[1], n.Template, encoded[2], encoded[3],
		string(n.Status), n.Attempts, n.RetryPolicy.MaxRetries, n.RetryPolicy.BaseDelay.Milliseconds(),
		encoded[4], n.EncryptionKeyID, encoded[5], n.DismissReason,
		n.CreatedAt, n.UpdatedAt, n.ReadAt, n.DismissedAt, expiresAt,
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// placeholders returns "($1,...,$n)" groups for rows of width columns,
// starting after offset arguments.
func placeholders(rows, width, offset int) string {
	groups := make([]string, rows)
	for r := range rows {
		ph := make([]string, width)
		for c := range width {
			ph[c] = fmt.Sprintf("$%d", offset+r*width+c+1)
		}
		groups[r] = "(" + strings.Join(ph, ",") + ")"
	}
	return strings.Join(groups, ",")
}

// whereBuilder accumulates conditions with positional arguments.
type whereBuilder struct {
	conds []string
	args  []any
}

func newWhere() *whereBuilder {
	return &whereBuilder{conds: []string{"deleted_at IS NULL"}}
}

// add appends cond, where each "?" is replaced by the next placeholder.
func (w *whereBuilder) add(cond string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) sql() string {
	return strings.Join(w.conds, " AND ")
}

func listWhere(f notifications.ListFilter) *whereBuilder {
	w := newWhere()
	if f.UserID != "" {
		w.add("recipient_id = ?", f.UserID)
	}
	if f.Type != "" {
		w.add("type = ?", string(f.Type))
	}
	if f.Category != "" {
		w.add("category = ?", string(f.Category))
	}
	if f.Priority != "" {
		w.add("priority = ?", string(f.Priority))
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.UnreadOnly {
		w.add(unreadCond)
	}
	if !f.DateFrom.IsZero() {
		w.add("created_at >= ?", f.DateFrom)
	}
	if !f.DateTo.IsZero() {
		w.add("created_at <= ?", f.DateTo)
	}
	if !f.ExpiresBefore.IsZero() {
		w.add("expires_at < ?", f.ExpiresBefore)
	}
	if !f.CreatedBefore.IsZero() {
		w.add("created_at < ?", f.CreatedBefore)
	}
	return w
}

// markAllReadWhere selects unread rows the lifecycle lets move to read.
func markAllReadWhere(p notifications.MarkAllReadParams) *whereBuilder {
	w := newWhere()
	w.add("recipient_id = ?", p.UserID)
	w.add("status IN ('sent', 'delivered')")
	w.add(unreadCond)
	if p.Category != "" {
		w.add("category = ?", string(p.Category))
	}
	if p.Type != "" {
		w.add("type = ?", string(p.Type))
	}
	return w
}

func orderBy(f notifications.ListFilter) string {
	dir := "DESC"
	if f.SortOrder == notifications.SortAsc {
		dir = "ASC"
	}
	col := "created_at"
	switch f.SortBy {
	case notifications.SortByPriority:
		col = priorityRank
	case notifications.SortByExpiresAt:
		col = "expires_at"
	}
	return fmt.Sprintf("%s %s, id %s", col, dir, dir)
}

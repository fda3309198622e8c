package notifications_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/validator"
)

func validNotification() notifications.Notification {
	return notifications.Notification{
		RecipientID: "user_1",
		Type:        notifications.TypeMessage,
		Title:       "New message",
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		modify func(*notifications.Notification)
		fields []string
	}{
		{
			name:   "valid minimal",
			modify: func(*notifications.Notification) {},
		},
		{
			name:   "missing recipient",
			modify: func(n *notifications.Notification) { n.RecipientID = "" },
			fields: []string{"recipientId"},
		},
		{
			name:   "missing type",
			modify: func(n *notifications.Notification) { n.Type = "" },
			fields: []string{"type"},
		},
		{
			name:   "unknown type",
			modify: func(n *notifications.Notification) { n.Type = "carrier_pigeon" },
			fields: []string{"type"},
		},
		{
			name:   "missing title",
			modify: func(n *notifications.Notification) { n.Title = "" },
			fields: []string{"title"},
		},
		{
			name:   "title too long",
			modify: func(n *notifications.Notification) { n.Title = strings.Repeat("a", 256) },
			fields: []string{"title"},
		},
		{
			name:   "unknown priority",
			modify: func(n *notifications.Notification) { n.Priority = "whenever" },
			fields: []string{"priority"},
		},
		{
			name:   "unknown category",
			modify: func(n *notifications.Notification) { n.Category = "gossip" },
			fields: []string{"category"},
		},
		{
			name: "unknown channel",
			modify: func(n *notifications.Notification) {
				n.DeliveryChannels = []notifications.Channel{notifications.ChannelInApp, "fax"}
			},
			fields: []string{"deliveryChannels"},
		},
		{
			name: "non-positive base delay",
			modify: func(n *notifications.Notification) {
				n.RetryPolicy = notifications.RetryPolicy{MaxRetries: 3}
			},
			fields: []string{"retryPolicy"},
		},
		{
			name: "expiry before creation",
			modify: func(n *notifications.Notification) {
				n.CreatedAt = created
				n.ExpiresAt = created.Add(-time.Hour)
			},
			fields: []string{"expiresAt"},
		},
		{
			name: "invalid action",
			modify: func(n *notifications.Notification) {
				n.Actions = []notifications.Action{{Type: "teleport", URL: "not a url"}}
			},
			fields: []string{"actions[0].type", "actions[0].label", "actions[0].url"},
		},
		{
			name: "relative action url is accepted",
			modify: func(n *notifications.Notification) {
				n.Actions = []notifications.Action{{Type: notifications.ActionView, Label: "Open", URL: "/messages/1"}}
			},
		},
		{
			name: "several failures at once",
			modify: func(n *notifications.Notification) {
				n.RecipientID = ""
				n.Title = ""
			},
			fields: []string{"recipientId", "title"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			n := validNotification()
			tt.modify(&n)
			err := notifications.Validate(n)

			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, notifications.ErrValidation)

			var verr *notifications.ValidationError
			require.True(t, errors.As(err, &verr))
			for _, f := range tt.fields {
				assert.True(t, verr.Errors.Has(f), "expected failure for %s, got %v", f, verr.Errors.Fields())
			}

			ve := validator.As(err)
			assert.Len(t, ve, len(verr.Errors))
		})
	}
}

package notifications_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func TestResolvePriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  notifications.Type
		want notifications.Priority
	}{
		{notifications.TypeEmergency, notifications.PriorityCritical},
		{notifications.TypeAlert, notifications.PriorityHigh},
		{notifications.TypeAppointment, notifications.PriorityHigh},
		{notifications.TypePayment, notifications.PriorityHigh},
		{notifications.TypeMessage, notifications.PriorityNormal},
		{notifications.TypeReminder, notifications.PriorityNormal},
		{notifications.TypeSystem, notifications.PriorityLow},
		{notifications.TypeUpdate, notifications.PriorityLow},
		{notifications.TypeDocument, notifications.PriorityNormal},
		{notifications.TypePlanProgress, notifications.PriorityNormal},
		{"unknown", notifications.PriorityNormal},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, notifications.ResolvePriority(tt.typ))
		})
	}
}

func TestResolveExpiration(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	tests := []struct {
		priority notifications.Priority
		want     time.Duration
	}{
		{notifications.PriorityCritical, day},
		{notifications.PriorityHigh, 7 * day},
		{notifications.PriorityNormal, 30 * day},
		{notifications.PriorityLow, 90 * day},
		{notifications.PriorityUrgent, 30 * day},
		{"", 30 * day},
	}

	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, now.Add(tt.want), notifications.ResolveExpiration(tt.priority, now))
		})
	}
}

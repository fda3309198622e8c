package notifications

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// Type is the domain event kind a notification reports.
type Type string

const (
	TypeAppointment  Type = "appointment"
	TypeMessage      Type = "message"
	TypePayment      Type = "payment"
	TypeSystem       Type = "system"
	TypeReminder     Type = "reminder"
	TypeAlert        Type = "alert"
	TypeUpdate       Type = "update"
	TypePlanProgress Type = "plan_progress"
	TypeSessionNote  Type = "session_note"
	TypeDocument     Type = "document"
	TypeVerification Type = "verification"
	TypeEmergency    Type = "emergency"
)

// Types lists every supported notification type.
var Types = []Type{
	TypeAppointment, TypeMessage, TypePayment, TypeSystem, TypeReminder, TypeAlert,
	TypeUpdate, TypePlanProgress, TypeSessionNote, TypeDocument, TypeVerification, TypeEmergency,
}

// Priority controls expiration and presentation urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityUrgent   Priority = "urgent"
	PriorityCritical Priority = "critical"
)

var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent, PriorityCritical}

// Channel is a delivery medium.
type Channel string

const (
	ChannelInApp   Channel = "in_app"
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelWebhook Channel = "webhook"
)

var Channels = []Channel{ChannelInApp, ChannelEmail, ChannelSMS, ChannelPush, ChannelWebhook}

// Status is the lifecycle state of a notification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusDismissed Status = "dismissed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

var Statuses = []Status{
	StatusPending, StatusSent, StatusDelivered, StatusRead, StatusDismissed, StatusFailed, StatusExpired,
}

// IsTerminal reports whether no further transitions leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRead, StatusDismissed, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// Category groups notifications for user preferences and bulk reads.
type Category string

const (
	CategoryAppointmentReminders Category = "appointment_reminders"
	CategoryMessages             Category = "messages"
	CategoryPlanUpdates          Category = "plan_updates"
	CategoryPaymentAlerts        Category = "payment_alerts"
	CategorySystemMaintenance    Category = "system_maintenance"
	CategorySecurityAlerts       Category = "security_alerts"
	CategoryProgressReports      Category = "progress_reports"
	CategoryDocumentRequests     Category = "document_requests"
)

var Categories = []Category{
	CategoryAppointmentReminders, CategoryMessages, CategoryPlanUpdates, CategoryPaymentAlerts,
	CategorySystemMaintenance, CategorySecurityAlerts, CategoryProgressReports, CategoryDocumentRequests,
}

// ActionType identifies what a call-to-action does.
type ActionType string

const (
	ActionView     ActionType = "view"
	ActionApprove  ActionType = "approve"
	ActionReject   ActionType = "reject"
	ActionSchedule ActionType = "schedule"
	ActionPayment  ActionType = "payment"
	ActionDownload ActionType = "download"
	ActionRespond  ActionType = "respond"
	ActionDismiss  ActionType = "dismiss"
)

var ActionTypes = []ActionType{
	ActionView, ActionApprove, ActionReject, ActionSchedule, ActionPayment, ActionDownload, ActionRespond, ActionDismiss,
}

// Outcome is what a successful adapter call achieved.
type Outcome string

const (
	// OutcomeHandedOff means the channel accepted the notification without confirming receipt.
	OutcomeHandedOff Outcome = "handed_off"
	// OutcomeConfirmed means the channel confirmed delivery.
	OutcomeConfirmed Outcome = "confirmed"
)

// Action represents a call-to-action button in a notification.
type Action struct {
	Type      ActionType `json:"type"`
	Label     string     `json:"label"`
	URL       string     `json:"url,omitempty"`
	IsDefault bool       `json:"isDefault,omitempty"`
}

// DefaultAction returns the first action flagged as default, else the first action.
func DefaultAction(actions []Action) (Action, bool) {
	for _, a := range actions {
		if a.IsDefault {
			return a, true
		}
	}
	if len(actions) > 0 {
		return actions[0], true
	}
	return Action{}, false
}

// RetryPolicy bounds redelivery of failed channels.
// BaseDelay is carried on the wire in milliseconds.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

var (
	RetryImmediate  = RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}
	RetryGradual    = RetryPolicy{MaxRetries: 5, BaseDelay: 5 * time.Second}
	RetryPersistent = RetryPolicy{MaxRetries: 10, BaseDelay: 30 * time.Second}
)

// RetryPolicies maps policy names to their settings.
var RetryPolicies = map[string]RetryPolicy{
	"immediate":  RetryImmediate,
	"gradual":    RetryGradual,
	"persistent": RetryPersistent,
}

func (p RetryPolicy) IsZero() bool { return p == RetryPolicy{} }

type retryPolicyJSON struct {
	MaxRetries  int   `json:"maxRetries"`
	BaseDelayMs int64 `json:"baseDelay"`
}

func (p RetryPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(retryPolicyJSON{MaxRetries: p.MaxRetries, BaseDelayMs: p.BaseDelay.Milliseconds()})
}

func (p *RetryPolicy) UnmarshalJSON(b []byte) error {
	var raw retryPolicyJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.MaxRetries = raw.MaxRetries
	p.BaseDelay = time.Duration(raw.BaseDelayMs) * time.Millisecond
	return nil
}

// DeliveryStatus is the outcome recorded for a single channel attempt.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryResult records one channel attempt. Results are appended, never rewritten.
type DeliveryResult struct {
	Channel     Channel        `json:"channel"`
	Status      DeliveryStatus `json:"status"`
	Attempt     int            `json:"attempt"`
	DeliveredAt *time.Time     `json:"deliveredAt,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Notification is the core domain model.
type Notification struct {
	ID               string           `json:"id"`
	RecipientID      string           `json:"recipientId"`
	SenderID         string           `json:"senderId,omitempty"`
	Type             Type             `json:"type"`
	Priority         Priority         `json:"priority,omitempty"`
	Category         Category         `json:"category,omitempty"`
	Title            string           `json:"title"`
	Body             string           `json:"body,omitempty"`
	Data             map[string]any   `json:"data,omitempty"`
	Actions          []Action         `json:"actions,omitempty"`
	Template         string           `json:"template,omitempty"`
	TemplateData     map[string]any   `json:"templateData,omitempty"`
	DeliveryChannels []Channel        `json:"deliveryChannels"`
	Status           Status           `json:"status"`
	Attempts         int              `json:"attempts"`
	RetryPolicy      RetryPolicy      `json:"retryPolicy"`
	DeliveryResults  []DeliveryResult `json:"deliveryResults,omitempty"`
	EncryptionKeyID  string           `json:"encryptionKeyId,omitempty"`
	EncryptedFields  []string         `json:"encryptedFields,omitempty"`
	DismissReason    string           `json:"dismissReason,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt,omitzero"`
	ReadAt           *time.Time       `json:"readAt,omitempty"`
	DismissedAt      *time.Time       `json:"dismissedAt,omitempty"`
	ExpiresAt        time.Time        `json:"expiresAt,omitzero"`
}

// IsExpired reports whether the notification is past its expiry at now.
func (n Notification) IsExpired(now time.Time) bool {
	return !n.ExpiresAt.IsZero() && now.After(n.ExpiresAt)
}

// IsUnread reports whether the recipient has not read or dismissed the notification.
func (n Notification) IsUnread() bool {
	return n.ReadAt == nil && n.Status != StatusRead && n.Status != StatusDismissed
}

// IsEncrypted reports whether the record still carries ciphertext.
func (n Notification) IsEncrypted() bool {
	return n.EncryptionKeyID != "" && len(n.EncryptedFields) > 0
}

// HasSuccessfulDelivery reports whether any recorded attempt succeeded.
func (n Notification) HasSuccessfulDelivery() bool {
	for _, r := range n.DeliveryResults {
		if r.Status != DeliveryFailed {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices or top-level maps with n.
func (n Notification) Clone() Notification {
	c := n
	c.Data = maps.Clone(n.Data)
	c.TemplateData = maps.Clone(n.TemplateData)
	c.Actions = slices.Clone(n.Actions)
	c.DeliveryChannels = slices.Clone(n.DeliveryChannels)
	c.DeliveryResults = slices.Clone(n.DeliveryResults)
	c.EncryptedFields = slices.Clone(n.EncryptedFields)
	if n.ReadAt != nil {
		t := *n.ReadAt
		c.ReadAt = &t
	}
	if n.DismissedAt != nil {
		t := *n.DismissedAt
		c.DismissedAt = &t
	}
	return c
}

// HasChannel reports whether ch is among the requested delivery channels.
func (n Notification) HasChannel(ch Channel) bool {
	return slices.Contains(n.DeliveryChannels, ch)
}

// PushSubscription is a device registration enabling push delivery.
type PushSubscription struct {
	Endpoint  string    `json:"endpoint,omitempty"`
	P256dh    string    `json:"p256dh,omitempty"`
	Auth      string    `json:"auth,omitempty"`
	Token     string    `json:"token,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Enumerations exposes the fixed value sets to callers.
type Enumerations struct {
	Types         []Type                 `json:"types"`
	Priorities    []Priority             `json:"priorities"`
	Channels      []Channel              `json:"channels"`
	Statuses      []Status               `json:"statuses"`
	Categories    []Category             `json:"categories"`
	ActionTypes   []ActionType           `json:"actionTypes"`
	Templates     []string               `json:"templates"`
	RetryPolicies map[string]RetryPolicy `json:"retryPolicies"`
}

// Templates lists the names of the built-in templates.
var Templates = []string{
	"appointment_reminder", "appointment_confirmed", "appointment_cancelled",
	"new_message", "plan_assigned", "plan_updated", "objective_completed",
	"payment_due", "payment_received", "document_required", "system_update",
}

// AllEnumerations returns copies of every fixed enumeration.
func AllEnumerations() Enumerations {
	return Enumerations{
		Types:         slices.Clone(Types),
		Priorities:    slices.Clone(Priorities),
		Channels:      slices.Clone(Channels),
		Statuses:      slices.Clone(Statuses),
		Categories:    slices.Clone(Categories),
		ActionTypes:   slices.Clone(ActionTypes),
		Templates:     slices.Clone(Templates),
		RetryPolicies: maps.Clone(RetryPolicies),
	}
}

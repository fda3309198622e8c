package notifications

import (
	"fmt"

	"github.com/dmitrymomot/notifykit/pkg/validator"
)

const maxTitleLength = 255

// Validate checks a notification before it is persisted. It returns a
// *ValidationError listing every invalid field, or nil.
func Validate(n Notification) error {
	rules := []validator.Rule{
		validator.Required("recipientId", n.RecipientID),
		validator.Required("type", string(n.Type)),
		validator.When(n.Type != "", validator.OneOf("type", n.Type, Types)),
		validator.Required("title", n.Title),
		validator.MaxLen("title", n.Title, maxTitleLength),
		validator.When(n.Priority != "", validator.OneOf("priority", n.Priority, Priorities)),
		validator.When(n.Category != "", validator.OneOf("category", n.Category, Categories)),
		validator.EachOneOf("deliveryChannels", n.DeliveryChannels, Channels),
		validator.When(!n.RetryPolicy.IsZero(), validator.Check(
			n.RetryPolicy.MaxRetries >= 0 && n.RetryPolicy.BaseDelay > 0,
			"retryPolicy", "retry_policy",
			"maxRetries must not be negative and baseDelay must be positive",
		)),
		validator.When(!n.ExpiresAt.IsZero() && !n.CreatedAt.IsZero(),
			validator.After("expiresAt", n.ExpiresAt, n.CreatedAt)),
	}

	for i, a := range n.Actions {
		rules = append(rules,
			validator.OneOf(fmt.Sprintf("actions[%d].type", i), a.Type, ActionTypes),
			validator.Required(fmt.Sprintf("actions[%d].label", i), a.Label),
			validator.When(a.URL != "", validator.Link(fmt.Sprintf("actions[%d].url", i), a.URL, true)),
		)
	}

	if err := validator.Apply(rules...); err != nil {
		return &ValidationError{Errors: validator.As(err)}
	}
	return nil
}

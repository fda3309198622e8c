package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/email"
)

// AddressResolver looks up the destination address of a recipient.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, recipientID string, ch Channel) (string, error)
}

// AddressResolverFunc adapts a function to AddressResolver.
type AddressResolverFunc func(ctx context.Context, recipientID string, ch Channel) (string, error)

func (f AddressResolverFunc) ResolveAddress(ctx context.Context, recipientID string, ch Channel) (string, error) {
	return f(ctx, recipientID, ch)
}

var emailLayout = template.Must(template.New("email").Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<h2>{{ .Title }}</h2>
{{ if .Body }}<p>{{ .Body }}</p>{{ end }}
{{ range .Actions }}{{ if .URL }}<p><a href="{{ .URL }}">{{ .Label }}</a></p>{{ end }}{{ end }}
</body></html>`))

// EmailAdapter sends notifications directly through an email.EmailSender.
type EmailAdapter struct {
	sender   email.EmailSender
	resolver AddressResolver
}

// NewEmailAdapter builds an adapter. When resolver is nil the address is
// taken from the notification's "email" data field.
func NewEmailAdapter(sender email.EmailSender, resolver AddressResolver) *EmailAdapter {
	return &EmailAdapter{sender: sender, resolver: resolver}
}

func (a *EmailAdapter) Channel() Channel { return ChannelEmail }

func (a *EmailAdapter) Deliver(ctx context.Context, n Notification) (Outcome, error) {
	to, err := a.address(ctx, n)
	if err != nil {
		return "", deliveryError(n, ChannelEmail, err)
	}

	var body bytes.Buffer
	if err := emailLayout.Execute(&body, n); err != nil {
		return "", deliveryError(n, ChannelEmail, fmt.Errorf("render email: %w", err))
	}

	err = a.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   to,
		Subject:  n.Title,
		BodyHTML: body.String(),
		BodyText: plainText(n),
		Tag:      string(n.Type),
		Metadata: map[string]string{"notification_id": n.ID, "recipient_id": n.RecipientID},
	})
	if err != nil {
		de := deliveryError(n, ChannelEmail, err)
		if email.IsPermanent(err) {
			de.Retryable = false
		}
		return "", de
	}
	return OutcomeConfirmed, nil
}

func plainText(n Notification) string {
	var b strings.Builder
	b.WriteString(n.Title)
	if n.Body != "" {
		b.WriteString("\n\n")
		b.WriteString(n.Body)
	}
	for _, act := range n.Actions {
		if act.URL != "" {
			fmt.Fprintf(&b, "\n\n%s: %s", act.Label, act.URL)
		}
	}
	return b.String()
}

func (a *EmailAdapter) address(ctx context.Context, n Notification) (string, error) {
	if a.resolver != nil {
		addr, err := a.resolver.ResolveAddress(ctx, n.RecipientID, ChannelEmail)
		if err != nil {
			return "", err
		}
		if addr != "" {
			return addr, nil
		}
	}
	if addr, ok := n.Data["email"].(string); ok && addr != "" && !n.IsEncrypted() {
		return addr, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoRecipientAddress, n.RecipientID)
}

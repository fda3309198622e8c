package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"
)

type smtpClient struct {
	client *mail.Client
	config Config
}

// NewSMTPClient creates an email sender talking to a plain SMTP relay.
// Authentication is enabled when SMTPUsername is set.
func NewSMTPClient(cfg Config) (EmailSender, error) {
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("%w: SMTPHost is required", ErrInvalidConfig)
	}
	if err := validateIdentity(cfg); err != nil {
		return nil, err
	}

	opts := []mail.Option{mail.WithPort(cfg.SMTPPort)}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}

	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	return &smtpClient{client: client, config: cfg}, nil
}

func (c *smtpClient) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(c.config.SenderEmail); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if err := msg.ReplyTo(c.config.SupportEmail); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if err := msg.To(params.SendTo); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	msg.Subject(params.Subject)
	switch {
	case params.BodyText != "" && params.BodyHTML != "":
		msg.SetBodyString(mail.TypeTextPlain, params.BodyText)
		msg.AddAlternativeString(mail.TypeTextHTML, params.BodyHTML)
	case params.BodyHTML != "":
		msg.SetBodyString(mail.TypeTextHTML, params.BodyHTML)
	default:
		msg.SetBodyString(mail.TypeTextPlain, params.BodyText)
	}
	if params.Tag != "" {
		msg.SetGenHeader("X-Notification-Tag", params.Tag)
	}
	if id := params.Metadata["notification_id"]; id != "" {
		msg.SetGenHeader("X-Notification-Id", id)
	}

	if err := c.client.DialAndSendWithContext(ctx, msg); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	return nil
}

package fcm

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Client is the subset of the Firebase messaging client used by Sender.
type Client interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Config holds Firebase credentials.
type Config struct {
	CredentialsFile string `env:"FCM_CREDENTIALS_FILE"`
}

// Message is a platform-neutral push payload.
type Message struct {
	Title        string
	Body         string
	Data         map[string]string
	HighPriority bool
}

// Sender delivers messages to single device tokens.
type Sender struct {
	client         Client
	isUnregistered func(error) bool
}

// New wraps an existing messaging client.
func New(client Client) *Sender {
	return &Sender{client: client, isUnregistered: messaging.IsUnregistered}
}

// NewFromConfig initializes a Firebase app from the credentials file.
func NewFromConfig(ctx context.Context, cfg Config) (*Sender, error) {
	if cfg.CredentialsFile == "" {
		return nil, fmt.Errorf("%w: credentials file is required", ErrInvalidConfig)
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	return New(client), nil
}

// Send delivers msg to token and returns the FCM message ID.
func (s *Sender) Send(ctx context.Context, token string, msg Message) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}

	m := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	}
	if msg.HighPriority {
		m.Android = &messaging.AndroidConfig{Priority: "high"}
		m.APNS = &messaging.APNSConfig{Headers: map[string]string{"apns-priority": "10"}}
	}

	id, err := s.client.Send(ctx, m)
	if err != nil {
		if s.isUnregistered(err) {
			return "", errors.Join(ErrUnregistered, err)
		}
		return "", errors.Join(ErrSendFailed, err)
	}
	return id, nil
}

package email

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mrz1836/postmark"
)

// PostmarkAPI is the part of the Postmark client the sender uses.
type PostmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Postmark API error codes that will fail the same way on every attempt.
// See https://postmarkapp.com/developer/api/overview#error-codes.
var permanentPostmarkCodes = []int64{
	300, // invalid email request
	400, // sender signature not found
	406, // inactive recipient
	411, // invalid JSON
}

// PostmarkError is a rejection reported in a Postmark response body.
type PostmarkError struct {
	Code    int64
	Message string
	To      string
}

func (e *PostmarkError) Error() string {
	return fmt.Sprintf("postmark rejected message to %s: %d %s", e.To, e.Code, e.Message)
}

// Is makes every PostmarkError match ErrFailedToSendEmail.
func (e *PostmarkError) Is(target error) bool { return target == ErrFailedToSendEmail }

// Permanent reports whether resending the same message cannot succeed.
func (e *PostmarkError) Permanent() bool { return slices.Contains(permanentPostmarkCodes, e.Code) }

// IsPermanent reports whether err carries a provider rejection that will not
// clear up on retry, or invalid message parameters.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrInvalidParams) {
		return true
	}
	var pe *PostmarkError
	return errors.As(err, &pe) && pe.Permanent()
}

// PostmarkSender delivers email through Postmark's transactional API.
type PostmarkSender struct {
	api        PostmarkAPI
	from       string
	replyTo    string
	trackOpens bool
}

// PostmarkOption configures a PostmarkSender.
type PostmarkOption func(*PostmarkSender)

// WithPostmarkAPI replaces the HTTP client built from the config tokens.
func WithPostmarkAPI(api PostmarkAPI) PostmarkOption {
	return func(s *PostmarkSender) { s.api = api }
}

// WithOpenTracking toggles Postmark open tracking. Enabled by default.
func WithOpenTracking(enabled bool) PostmarkOption {
	return func(s *PostmarkSender) { s.trackOpens = enabled }
}

// NewPostmarkClient creates a Postmark-backed sender. The server token is
// required unless an API is injected with WithPostmarkAPI.
func NewPostmarkClient(cfg Config, opts ...PostmarkOption) (*PostmarkSender, error) {
	if err := validateIdentity(cfg); err != nil {
		return nil, err
	}

	s := &PostmarkSender{
		from:       cfg.SenderEmail,
		replyTo:    cfg.SupportEmail,
		trackOpens: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.api == nil {
		if cfg.PostmarkServerToken == "" {
			return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
		}
		s.api = postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken)
	}
	return s, nil
}

// SendEmail implements EmailSender. Replies go to the support address and
// params.Metadata is attached to the message for webhook correlation.
func (s *PostmarkSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	msg := postmark.Email{
		From:       s.from,
		ReplyTo:    s.replyTo,
		To:         params.SendTo,
		Subject:    params.Subject,
		Tag:        params.Tag,
		HTMLBody:   params.BodyHTML,
		TextBody:   params.BodyText,
		Metadata:   params.Metadata,
		TrackOpens: s.trackOpens,
	}
	if params.BodyHTML != "" {
		msg.TrackLinks = "HtmlOnly"
	}

	resp, err := s.api.SendEmail(ctx, msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode != 0 {
		return &PostmarkError{Code: int64(resp.ErrorCode), Message: resp.Message, To: params.SendTo}
	}
	return nil
}

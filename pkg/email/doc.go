// Package email sends transactional emails through a provider-agnostic
// EmailSender interface.
//
// Three transports are available:
//   - Postmark, for production delivery with open and link tracking
//   - SMTP via go-mail, for self-hosted relays
//   - DevSender, which writes each message body to disk next to a JSON metadata file
//
// New picks the transport from Config.Provider:
//
//	sender, err := email.New(cfg)
//	if err != nil {
//	    return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//	    SendTo:   "user@example.com",
//	    Subject:  "Appointment reminder",
//	    BodyHTML: html,
//	    Tag:      "appointment_reminder",
//	})
//
// All senders validate SendEmailParams first and report failures wrapped in
// ErrInvalidParams or ErrFailedToSendEmail. IsPermanent tells apart
// rejections that will fail again on retry.
package email

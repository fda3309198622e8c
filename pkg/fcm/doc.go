// Package fcm sends push messages through Firebase Cloud Messaging.
//
// NewFromConfig builds a Sender from a service-account credentials file
// (FCM_CREDENTIALS_FILE). Tests and alternative transports can supply any
// Client implementation through New.
//
// # Usage
//
//	sender, err := fcm.NewFromConfig(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	id, err := sender.Send(ctx, token, fcm.Message{Title: "Hi", Body: "There"})
//	if errors.Is(err, fcm.ErrUnregistered) {
//	    // drop the device token
//	}
package fcm

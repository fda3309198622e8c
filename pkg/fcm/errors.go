package fcm

import "errors"

var (
	ErrMissingToken  = errors.New("fcm: device token is required")
	ErrUnregistered  = errors.New("fcm: device token is no longer registered")
	ErrInvalidConfig = errors.New("fcm: invalid configuration")
	ErrSendFailed    = errors.New("fcm: send failed")
)

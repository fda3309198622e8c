package config

import "errors"

var (
	ErrParsingConfig = errors.New("config: parse environment")
	ErrDotEnv        = errors.New("config: read dotenv file")
	ErrNilPointer    = errors.New("config: target must be a non-nil pointer")
)

package cache

import "errors"

var (
	ErrEmptyKey   = errors.New("cache: empty key")
	ErrRedisCache = errors.New("cache: redis operation failed")
)

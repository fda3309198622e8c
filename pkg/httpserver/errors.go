package httpserver

import "errors"

var (
	ErrListen   = errors.New("httpserver: listen failed")
	ErrShutdown = errors.New("httpserver: graceful shutdown failed")
	ErrRunning  = errors.New("httpserver: already running")
)

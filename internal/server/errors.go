package server

import "errors"

// Server-specific errors
var (
	ErrServerClosed    = errors.New("server is closed")
	ErrInvalidUpdate   = errors.New("invalid model update")
	ErrInvalidConfig   = errors.New("invalid server configuration")
	ErrListenerFailed  = errors.New("failed to create listener")
	ErrTLSSetupFailed  = errors.New("failed to build TLS configuration")
	ErrNothingToListen = errors.New("no listener address configured")
)

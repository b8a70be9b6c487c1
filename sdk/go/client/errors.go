package client

import "errors"

// Client-specific errors
var (
	ErrEmptyEndpoint     = errors.New("endpoint is empty")
	ErrInvalidConfig     = errors.New("invalid client configuration")
	ErrUnexpectedStatus  = errors.New("unexpected response status")
	ErrInvalidResponse   = errors.New("invalid response body")
	ErrStreamInterrupted = errors.New("step stream interrupted")
)

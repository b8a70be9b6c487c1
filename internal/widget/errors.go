package widget

import "errors"

var (
	ErrNoTransport = errors.New("widget has no transport")
	ErrNoModel     = errors.New("widget has no host model")
)

package protocol

import "errors"

// Wire format errors
var (
	ErrInvalidPoint       = errors.New("invalid point")
	ErrInvalidShape       = errors.New("invalid shape")
	ErrUnknownShape       = errors.New("unknown shape type")
	ErrInvalidScale       = errors.New("invalid pixels-per-meter scale")
	ErrUnknownResultType  = errors.New("unknown result type")
	ErrMissingPayload     = errors.New("missing payload")
	ErrInvalidSnapshot    = errors.New("invalid map snapshot")
	ErrDeserializeFailed  = errors.New("payload deserialization failed")
	ErrUnsupportedCommand = errors.New("unsupported command")
)

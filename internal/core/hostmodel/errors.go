package hostmodel

import "errors"

var ErrInvalidValue = errors.New("model value is not valid JSON")

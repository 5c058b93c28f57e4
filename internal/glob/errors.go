package glob

import "errors"

// ErrMalformedPattern is returned when a pattern cannot be compiled.
var ErrMalformedPattern = errors.New("malformed pattern")

package ruleset

import "errors"

var (
	// ErrInvalidDocument is returned when a rule-set document has the wrong shape.
	ErrInvalidDocument = errors.New("invalid rule set document")
	// ErrInvalidDirective is returned when a $if or $ref directive is malformed.
	ErrInvalidDirective = errors.New("invalid directive")
)

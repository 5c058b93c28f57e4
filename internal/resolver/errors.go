package resolver

import (
	"errors"

	"github.com/eugenenazirov/layerconf/internal/glob"
)

var (
	// ErrMissingBase is returned when no base configuration is supplied.
	ErrMissingBase = errors.New("base configuration is required")
	// ErrInvalidLayer is returned when an override layer has no patterns.
	ErrInvalidLayer = errors.New("override layer must declare at least one pattern")
	// ErrMalformedPattern is returned when a layer pattern is not a valid glob.
	ErrMalformedPattern = glob.ErrMalformedPattern
	// ErrInvalidPredicate is returned when a conditional names no variable or an unknown operator.
	ErrInvalidPredicate = errors.New("invalid predicate")
	// ErrCyclicReference is returned when a value depends on itself through references.
	ErrCyclicReference = errors.New("cyclic reference")
	// ErrUnknownReference is returned when a reference names a path that does not exist.
	ErrUnknownReference = errors.New("reference to unknown path")
)

package resolver

import (
	"fmt"
)

// substituter replaces deferred nodes with literals in one pass over the
// merged tree. Results are memoised per key path (see childKey) so references
// and the walk itself share work, and visiting guards against reference
// cycles.
type substituter struct {
	env      Env
	root     map[string]any
	resolved map[string]any
	visiting map[string]bool
}

func (s *substituter) mapping(prefix string, m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for key, value := range m {
		resolved, err := s.entry(childKey(prefix, key), value)
		if err != nil {
			return nil, err
		}
		out[key] = resolved
	}
	return out, nil
}

// entry resolves the value stored at keyPath.
func (s *substituter) entry(keyPath string, value any) (any, error) {
	if v, ok := s.resolved[keyPath]; ok {
		return copyValue(v), nil
	}
	if s.visiting[keyPath] {
		return nil, fmt.Errorf("%w at %s", ErrCyclicReference, displayPath(keyPath))
	}

	s.visiting[keyPath] = true
	v, err := s.value(keyPath, value)
	delete(s.visiting, keyPath)
	if err != nil {
		return nil, err
	}

	s.resolved[keyPath] = v
	return copyValue(v), nil
}

func (s *substituter) value(keyPath string, value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		return s.mapping(keyPath, v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := s.value(indexKey(keyPath, i), item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case Conditional:
		return s.conditional(keyPath, v)
	case *Conditional:
		if v == nil {
			return nil, nil
		}
		return s.conditional(keyPath, *v)
	case Ref:
		return s.reference(v.Path)
	case *Ref:
		if v == nil {
			return nil, nil
		}
		return s.reference(v.Path)
	default:
		return v, nil
	}
}

func (s *substituter) conditional(keyPath string, c Conditional) (any, error) {
	if c.When.Eval(s.env) {
		return s.value(keyPath, c.Then)
	}
	return s.value(keyPath, c.Else)
}

func (s *substituter) reference(target string) (any, error) {
	segments := splitPath(target)
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReference, target)
	}

	var current any = s.root
	for i, segment := range segments {
		m, ok := current.(map[string]any)
		if !ok && isDeferred(current) {
			// An ancestor is itself conditional; descend into what it resolves to.
			resolved, err := s.entry(keyOf(segments[:i]), current)
			if err != nil {
				return nil, err
			}
			m, ok = resolved.(map[string]any)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownReference, target)
		}
		if current, ok = m[segment]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownReference, target)
		}
	}

	return s.entry(keyOf(segments), current)
}

func isDeferred(v any) bool {
	switch v.(type) {
	case Conditional, *Conditional, Ref, *Ref:
		return true
	}
	return false
}

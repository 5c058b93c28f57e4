package resolver

import "fmt"

// copyMap returns a deep copy of m with nested Config, map[string]string,
// map[any]any and []string values normalised to map[string]any and []any.
// Non-string keys are converted with fmt.Sprint.
func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case Config:
		return copyMap(t)
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = copyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case Conditional:
		return Conditional{When: t.When, Then: copyValue(t.Then), Else: copyValue(t.Else)}
	case *Conditional:
		if t == nil {
			return nil
		}
		return Conditional{When: t.When, Then: copyValue(t.Then), Else: copyValue(t.Else)}
	case *Ref:
		if t == nil {
			return nil
		}
		return Ref{Path: t.Path}
	default:
		return v
	}
}

// Copy returns a deep copy of c.
func (c Config) Copy() Config {
	if c == nil {
		return nil
	}
	return Config(copyMap(c))
}

package ruleset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/layerconf/internal/resolver"
)

const (
	keyIf   = "$if"
	keyThen = "$then"
	keyElse = "$else"
	keyRef  = "$ref"
)

// overrideKeys are the override entry keys that describe the layer itself
// rather than its configuration fragment.
var overrideKeys = map[string]struct{}{
	"name":   {},
	"files":  {},
	"append": {},
}

// Document is a decoded rule set: a base configuration and its overrides.
type Document struct {
	Name      string
	Base      resolver.Config
	Overrides []resolver.Layer
}

// rawDocument mirrors the file layout before directives are decoded.
type rawDocument struct {
	Name      string           `yaml:"name"`
	Base      map[string]any   `yaml:"base"`
	Overrides []map[string]any `yaml:"overrides"`
}

// Decode parses a YAML or JSON rule-set document.
func Decode(data []byte) (*Document, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrInvalidDocument, err)
	}

	base, err := decodeMapping("base", raw.Base)
	if err != nil {
		return nil, err
	}
	if base == nil {
		base = resolver.Config{}
	}

	doc := &Document{
		Name:      strings.TrimSpace(raw.Name),
		Base:      base,
		Overrides: make([]resolver.Layer, 0, len(raw.Overrides)),
	}

	for idx, entry := range raw.Overrides {
		layer, err := decodeOverride(idx, entry)
		if err != nil {
			return nil, err
		}
		doc.Overrides = append(doc.Overrides, layer)
	}

	return doc, nil
}

// LoadFile reads and decodes a rule-set file. When the document carries no
// name, the file name without extension is used.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if doc.Name == "" {
		doc.Name = NameFromPath(path)
	}
	return doc, nil
}

// NameFromPath derives a rule-set name from a file path.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Compile validates the document's layers and builds a resolver.
func (d *Document) Compile() (*resolver.Resolver, error) {
	return resolver.New(d.Base, d.Overrides)
}

func decodeOverride(idx int, entry map[string]any) (resolver.Layer, error) {
	where := fmt.Sprintf("overrides[%d]", idx)

	var layer resolver.Layer
	if name, ok := entry["name"]; ok {
		s, ok := name.(string)
		if !ok {
			return resolver.Layer{}, fmt.Errorf("%w: %s.name must be a string", ErrInvalidDocument, where)
		}
		layer.Name = s
	}

	patterns, err := stringList(entry["files"])
	if err != nil {
		return resolver.Layer{}, fmt.Errorf("%w: %s.files %v", ErrInvalidDocument, where, err)
	}
	layer.Patterns = patterns

	appendKeys, err := stringList(entry["append"])
	if err != nil {
		return resolver.Layer{}, fmt.Errorf("%w: %s.append %v", ErrInvalidDocument, where, err)
	}
	layer.Append = appendKeys

	fragment := make(map[string]any, len(entry))
	for key, value := range entry {
		if _, reserved := overrideKeys[key]; reserved {
			continue
		}
		fragment[key] = value
	}
	decoded, err := decodeMapping(where, fragment)
	if err != nil {
		return resolver.Layer{}, err
	}
	layer.Fragment = decoded

	return layer, nil
}

// stringList accepts a single string or a list of strings.
func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("must contain only strings, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("must be a string or a list of strings, got %T", v)
	}
}

func decodeMapping(where string, m map[string]any) (resolver.Config, error) {
	if m == nil {
		return nil, nil
	}
	out := make(resolver.Config, len(m))
	for key, value := range m {
		decoded, err := decodeValue(where+"."+key, value)
		if err != nil {
			return nil, err
		}
		out[key] = decoded
	}
	return out, nil
}

func decodeValue(where string, v any) (any, error) {
	switch t := v.(type) {
	case map[any]any:
		// yaml.v3 produces these when a mapping has non-string keys.
		keyed := make(map[string]any, len(t))
		for key, value := range t {
			keyed[fmt.Sprint(key)] = value
		}
		return decodeValue(where, keyed)
	case map[string]any:
		if isDirective(t) {
			return decodeDirective(where, t)
		}
		out := make(map[string]any, len(t))
		for key, value := range t {
			decoded, err := decodeValue(where+"."+key, value)
			if err != nil {
				return nil, err
			}
			out[key] = decoded
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			decoded, err := decodeValue(fmt.Sprintf("%s[%d]", where, i), item)
			if err != nil {
				return nil, err
			}
			out[i] = decoded
		}
		return out, nil
	default:
		return v, nil
	}
}

// isDirective reports whether m is a $if or $ref node. Other $-prefixed keys
// such as $schema are ordinary configuration.
func isDirective(m map[string]any) bool {
	_, hasIf := m[keyIf]
	_, hasRef := m[keyRef]
	return hasIf || hasRef
}

func decodeDirective(where string, m map[string]any) (any, error) {
	if ref, ok := m[keyRef]; ok {
		if len(m) != 1 {
			return nil, fmt.Errorf("%w: %s: %s cannot be combined with other keys", ErrInvalidDirective, where, keyRef)
		}
		path, ok := ref.(string)
		if !ok || path == "" {
			return nil, fmt.Errorf("%w: %s: %s must be a non-empty string", ErrInvalidDirective, where, keyRef)
		}
		return resolver.Ref{Path: path}, nil
	}

	cond := m[keyIf]
	for key := range m {
		if key != keyIf && key != keyThen && key != keyElse {
			return nil, fmt.Errorf("%w: %s: unexpected key %q next to %s", ErrInvalidDirective, where, key, keyIf)
		}
	}
	if _, ok := m[keyThen]; !ok {
		return nil, fmt.Errorf("%w: %s: %s requires %s", ErrInvalidDirective, where, keyIf, keyThen)
	}

	predicate, err := decodePredicate(where, cond)
	if err != nil {
		return nil, err
	}
	then, err := decodeValue(where+"."+keyThen, m[keyThen])
	if err != nil {
		return nil, err
	}
	otherwise, err := decodeValue(where+"."+keyElse, m[keyElse])
	if err != nil {
		return nil, err
	}

	return resolver.When(predicate, then, otherwise), nil
}

func decodePredicate(where string, v any) (resolver.Predicate, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return resolver.Predicate{}, fmt.Errorf("%w: %s: %s must be a mapping", ErrInvalidDirective, where, keyIf)
	}

	name, _ := m["env"].(string)
	if name == "" {
		return resolver.Predicate{}, fmt.Errorf("%w: %s: %s.env must name a variable", ErrInvalidDirective, where, keyIf)
	}

	var (
		predicate resolver.Predicate
		ops       int
	)
	for key, value := range m {
		if key == "env" {
			continue
		}
		op := resolver.Op(key)
		switch op {
		case resolver.OpEquals, resolver.OpNotEquals:
			s, err := scalarString(value)
			if err != nil {
				return resolver.Predicate{}, fmt.Errorf("%w: %s: %s.%s %v", ErrInvalidDirective, where, keyIf, key, err)
			}
			predicate = resolver.Predicate{Var: name, Op: op, Value: s}
		case resolver.OpDefined, resolver.OpTruthy:
			if b, ok := value.(bool); !ok || !b {
				return resolver.Predicate{}, fmt.Errorf("%w: %s: %s.%s must be true", ErrInvalidDirective, where, keyIf, key)
			}
			predicate = resolver.Predicate{Var: name, Op: op}
		default:
			return resolver.Predicate{}, fmt.Errorf("%w: %s: unknown operator %q", ErrInvalidDirective, where, key)
		}
		ops++
	}

	if ops != 1 {
		return resolver.Predicate{}, fmt.Errorf("%w: %s: %s needs exactly one operator, got %d", ErrInvalidDirective, where, keyIf, ops)
	}
	return predicate, nil
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool, int, int64, float64:
		return fmt.Sprint(t), nil
	default:
		return "", fmt.Errorf("must be a scalar, got %T", v)
	}
}

package resolver

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"

	"github.com/eugenenazirov/layerconf/internal/glob"
)

type compiledLayer struct {
	name     string
	patterns []*glob.Pattern
	literals []string
	fragment map[string]any
	appendTo map[string]struct{}
}

// Resolver holds a validated base configuration and its override layers.
// It is immutable and safe for concurrent use.
type Resolver struct {
	base   map[string]any
	layers []compiledLayer
}

// New validates the base configuration and every layer and compiles their
// patterns. Inputs are copied; later changes by the caller have no effect.
func New(base Config, overrides []Layer) (*Resolver, error) {
	if base == nil {
		return nil, ErrMissingBase
	}
	if err := validateTree("", base); err != nil {
		return nil, fmt.Errorf("base: %w", err)
	}

	layers := make([]compiledLayer, 0, len(overrides))
	for idx, layer := range overrides {
		compiled, err := compileLayer(idx, layer)
		if err != nil {
			return nil, err
		}
		layers = append(layers, compiled)
	}

	return &Resolver{
		base:   copyMap(base),
		layers: layers,
	}, nil
}

// Resolve computes the effective configuration for ctx in a single call.
func Resolve(base Config, overrides []Layer, env Env, ctx Context) (Config, error) {
	r, err := New(base, overrides)
	if err != nil {
		return nil, err
	}
	return r.Resolve(env, ctx)
}

// Resolve merges the applicable layers onto a copy of the base configuration
// in declaration order and substitutes every conditional and reference.
func (r *Resolver) Resolve(env Env, ctx Context) (Config, error) {
	merged := copyMap(r.base)
	for i := range r.layers {
		layer := &r.layers[i]
		if !layer.applies(ctx) {
			continue
		}
		mergeInto(merged, layer.fragment, "", layer.appendTo)
	}

	s := &substituter{
		env:      env,
		root:     merged,
		resolved: make(map[string]any),
		visiting: make(map[string]bool),
	}
	out, err := s.mapping("", merged)
	if err != nil {
		return nil, err
	}
	return Config(out), nil
}

// Applicable returns the names of the layers that apply to ctx, in the order
// they are merged. Unnamed layers are reported as "#<index>".
func (r *Resolver) Applicable(ctx Context) []string {
	var names []string
	for i := range r.layers {
		if r.layers[i].applies(ctx) {
			names = append(names, r.layers[i].name)
		}
	}
	return names
}

// LayerNames returns the names of all layers in declaration order.
func (r *Resolver) LayerNames() []string {
	names := make([]string, len(r.layers))
	for i := range r.layers {
		names[i] = r.layers[i].name
	}
	return names
}

func compileLayer(idx int, layer Layer) (compiledLayer, error) {
	name := layer.Name
	if name == "" {
		name = "#" + strconv.Itoa(idx)
	}

	if len(layer.Patterns) == 0 {
		return compiledLayer{}, fmt.Errorf("layer %s: %w", name, ErrInvalidLayer)
	}

	patterns := make([]*glob.Pattern, 0, len(layer.Patterns))
	for _, raw := range layer.Patterns {
		p, err := glob.Compile(raw)
		if err != nil {
			return compiledLayer{}, fmt.Errorf("layer %s: %w", name, err)
		}
		patterns = append(patterns, p)
	}

	if err := validateTree("", layer.Fragment); err != nil {
		return compiledLayer{}, fmt.Errorf("layer %s: %w", name, err)
	}

	appendTo := make(map[string]struct{}, len(layer.Append))
	for _, key := range layer.Append {
		appendTo[keyOf(splitPath(key))] = struct{}{}
	}

	fragment := map[string]any{}
	if layer.Fragment != nil {
		fragment = copyMap(layer.Fragment)
	}

	return compiledLayer{
		name:     name,
		patterns: patterns,
		literals: slices.Clone(layer.Patterns),
		fragment: fragment,
		appendTo: appendTo,
	}, nil
}

// validateTree rejects conditionals whose predicate cannot be evaluated.
func validateTree(prefix string, m map[string]any) error {
	for key, value := range m {
		if err := validateValue(childKey(prefix, key), value); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(keyPath string, v any) error {
	switch t := v.(type) {
	case map[string]any:
		return validateTree(keyPath, t)
	case Config:
		return validateTree(keyPath, t)
	case map[any]any:
		for k, item := range t {
			if err := validateValue(childKey(keyPath, fmt.Sprint(k)), item); err != nil {
				return err
			}
		}
	case []any:
		for i, item := range t {
			if err := validateValue(indexKey(keyPath, i), item); err != nil {
				return err
			}
		}
	case Conditional:
		return validateConditional(keyPath, t)
	case *Conditional:
		if t != nil {
			return validateConditional(keyPath, *t)
		}
	}
	return nil
}

func validateConditional(keyPath string, c Conditional) error {
	if !c.When.Valid() {
		return fmt.Errorf("%w at %s: %q %q", ErrInvalidPredicate, displayPath(keyPath), c.When.Var, c.When.Op)
	}
	if err := validateValue(keyPath, c.Then); err != nil {
		return err
	}
	return validateValue(keyPath, c.Else)
}

func (l *compiledLayer) applies(ctx Context) bool {
	for _, tag := range ctx.Tags {
		if slices.Contains(l.literals, tag) {
			return true
		}
	}
	if ctx.Path == "" {
		return false
	}
	for _, p := range l.patterns {
		if p.Match(ctx.Path) {
			return true
		}
	}
	return false
}

// mergeInto applies src onto dst. Mappings merge key by key, lists whose key
// path is in appendTo are concatenated without duplicates, everything else is
// replaced.
func mergeInto(dst, src map[string]any, prefix string, appendTo map[string]struct{}) {
	for key, value := range src {
		keyPath := childKey(prefix, key)
		incoming := copyValue(value)
		_, appendKey := appendTo[keyPath]

		existing, ok := dst[key]
		if !ok {
			if list, isList := incoming.([]any); isList && appendKey {
				incoming = appendUnique(list)
			}
			dst[key] = incoming
			continue
		}

		if existingMap, ok := existing.(map[string]any); ok {
			if incomingMap, ok := incoming.(map[string]any); ok {
				mergeInto(existingMap, incomingMap, keyPath, appendTo)
				continue
			}
		}

		if appendKey {
			existingList, okExisting := existing.([]any)
			incomingList, okIncoming := incoming.([]any)
			if okExisting && okIncoming {
				dst[key] = appendUnique(existingList, incomingList)
				continue
			}
		}

		dst[key] = incoming
	}
}

func appendUnique(lists ...[]any) []any {
	out := make([]any, 0)
	for _, list := range lists {
		for _, item := range list {
			if containsValue(out, item) {
				continue
			}
			out = append(out, item)
		}
	}
	return out
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if reflect.DeepEqual(item, v) {
			return true
		}
	}
	return false
}

package resolver

import (
	"strconv"
	"strings"
)

// Config is a configuration tree keyed by option name. Values are scalars,
// lists ([]any), nested mappings (map[string]any), or the deferred nodes
// Conditional and Ref.
type Config map[string]any

// Layer is a partial configuration applied when any of its patterns matches
// the resolution context.
type Layer struct {
	// Name identifies the layer in diagnostics. Optional.
	Name string
	// Patterns are glob patterns tested against Context.Path and literal tags
	// compared with Context.Tags.
	Patterns []string
	// Fragment is merged onto the configuration when the layer applies.
	Fragment Config
	// Append lists dotted key paths whose list values are concatenated
	// (without duplicates) instead of replaced. Each dot descends one
	// mapping level.
	Append []string
}

// Context identifies what is being configured.
type Context struct {
	Path string
	Tags []string
}

// Env is an immutable snapshot of environment variables.
type Env map[string]string

// SnapshotEnv builds an Env from KEY=VALUE pairs such as os.Environ returns.
// Later duplicates win. Entries without '=' are ignored.
func SnapshotEnv(environ []string) Env {
	env := make(Env, len(environ))
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}

// Lookup returns the value of name and whether it is defined.
func (e Env) Lookup(name string) (string, bool) {
	v, ok := e[name]
	return v, ok
}

// Op is a predicate operator.
type Op string

const (
	// OpEquals holds when the variable is defined and equal to Value.
	OpEquals Op = "equals"
	// OpNotEquals holds when the variable is defined and differs from Value.
	OpNotEquals Op = "not_equals"
	// OpDefined holds when the variable is defined, even if empty.
	OpDefined Op = "defined"
	// OpTruthy holds when the variable is defined and not "", "0" or "false".
	OpTruthy Op = "truthy"
)

// Predicate is a test against a single environment variable. A predicate
// on an undefined variable is always false.
type Predicate struct {
	Var   string
	Op    Op
	Value string
}

// Eval reports whether the predicate holds for env.
func (p Predicate) Eval(env Env) bool {
	v, ok := env.Lookup(p.Var)
	if !ok {
		return false
	}

	switch p.Op {
	case OpEquals:
		return v == p.Value
	case OpNotEquals:
		return v != p.Value
	case OpDefined:
		return true
	case OpTruthy:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "0", "false":
			return false
		}
		return true
	default:
		return false
	}
}

// Valid reports whether the predicate names a variable and a known operator.
func (p Predicate) Valid() bool {
	if p.Var == "" {
		return false
	}
	switch p.Op {
	case OpEquals, OpNotEquals, OpDefined, OpTruthy:
		return true
	}
	return false
}

// Conditional is a value chosen from the environment snapshot at resolution
// time: Then when When holds, Else otherwise (including when the variable is
// undefined).
type Conditional struct {
	When Predicate
	Then any
	Else any
}

// When builds a Conditional.
func When(p Predicate, then, otherwise any) Conditional {
	return Conditional{When: p, Then: then, Else: otherwise}
}

// Equals is shorthand for an OpEquals predicate.
func Equals(name, value string) Predicate {
	return Predicate{Var: name, Op: OpEquals, Value: value}
}

// Ref is a value equal to the resolved value at another dotted key path of
// the same effective configuration.
type Ref struct {
	Path string
}

func splitPath(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, ".")
}

// Key paths identify a position in a configuration tree independently of the
// key spelling: a key "process.env" and the nested keys process, env get
// distinct paths. Every map step is keySep+key and every list step is
// indexOpen+i+indexClose, so the root is "".
const (
	keySep     = "\x00"
	indexOpen  = "\x01"
	indexClose = "\x02"
)

func childKey(parent, key string) string {
	return parent + keySep + key
}

func indexKey(parent string, i int) string {
	return parent + indexOpen + strconv.Itoa(i) + indexClose
}

// keyOf returns the key path for a dotted reference split into segments.
func keyOf(segments []string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(keySep)
		b.WriteString(s)
	}
	return b.String()
}

var displayReplacer = strings.NewReplacer(keySep, ".", indexOpen, "[", indexClose, "]")

// displayPath renders a key path in dotted form for error messages.
func displayPath(key string) string {
	return strings.TrimPrefix(displayReplacer.Replace(key), ".")
}

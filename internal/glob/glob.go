package glob

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Pattern is a compiled glob pattern.
type Pattern struct {
	source    string
	re        *regexp.Regexp
	matchBase bool
}

// Compile translates a glob pattern into a matcher.
//
// Supported syntax: * (within a path segment), ** (across segments when it
// forms a whole segment), ?, [abc], [a-z], [!x], {a,b}, the extglobs ?(a|b),
// @(a|b), *(a|b), +(a|b), and backslash escapes. A pattern containing no
// slash is matched against the base name of the path.
func Compile(pattern string) (*Pattern, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrMalformedPattern)
	}

	source := strings.TrimPrefix(pattern, "./")
	c := &compiler{src: source}
	body, err := c.sequence("")
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedPattern, pattern, err)
	}

	re, err := regexp.Compile("^" + body + "$")
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedPattern, pattern, err)
	}

	return &Pattern{
		source:    pattern,
		re:        re,
		matchBase: !strings.Contains(source, "/"),
	}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// Match compiles pattern and reports whether it matches name.
func Match(pattern, name string) (bool, error) {
	p, err := Compile(pattern)
	if err != nil {
		return false, err
	}
	return p.Match(name), nil
}

// String returns the pattern as written.
func (p *Pattern) String() string {
	return p.source
}

// Match reports whether the pattern matches name. An empty name never matches.
func (p *Pattern) Match(name string) bool {
	name = normalize(name)
	if name == "" {
		return false
	}
	if p.matchBase {
		name = path.Base(name)
	}
	return p.re.MatchString(name)
}

func normalize(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	for strings.HasPrefix(name, "./") {
		name = name[2:]
	}
	return name
}

type compiler struct {
	src string
	pos int
}

// sequence translates input until one of stops is reached (not consumed) or
// the input ends.
func (c *compiler) sequence(stops string) (string, error) {
	var out strings.Builder

	for c.pos < len(c.src) {
		ch := c.src[c.pos]
		if stops != "" && strings.IndexByte(stops, ch) >= 0 {
			break
		}

		switch ch {
		case '\\':
			if c.pos+1 >= len(c.src) {
				return "", fmt.Errorf("trailing escape")
			}
			out.WriteString(regexp.QuoteMeta(c.src[c.pos+1 : c.pos+2]))
			c.pos += 2
		case '*':
			if c.peek(1) == '(' {
				group, err := c.extglob("*")
				if err != nil {
					return "", err
				}
				out.WriteString(group)
				continue
			}
			out.WriteString(c.star())
		case '?':
			if c.peek(1) == '(' {
				group, err := c.extglob("?")
				if err != nil {
					return "", err
				}
				out.WriteString(group)
				continue
			}
			out.WriteString("[^/]")
			c.pos++
		case '@', '+', '!':
			if c.peek(1) != '(' {
				out.WriteString(regexp.QuoteMeta(c.src[c.pos : c.pos+1]))
				c.pos++
				continue
			}
			if ch == '!' {
				return "", fmt.Errorf("negated group !(...) is not supported")
			}
			quantifier := ""
			if ch == '+' {
				quantifier = "+"
			}
			group, err := c.extglob(quantifier)
			if err != nil {
				return "", err
			}
			out.WriteString(group)
		case '[':
			class, err := c.class()
			if err != nil {
				return "", err
			}
			out.WriteString(class)
		case '{':
			c.pos++
			alts, err := c.alternatives('}', ',')
			if err != nil {
				return "", err
			}
			out.WriteString("(?:" + strings.Join(alts, "|") + ")")
		default:
			out.WriteString(regexp.QuoteMeta(c.src[c.pos : c.pos+1]))
			c.pos++
		}
	}

	return out.String(), nil
}

func (c *compiler) peek(offset int) byte {
	if c.pos+offset >= len(c.src) {
		return 0
	}
	return c.src[c.pos+offset]
}

// star handles * and **. A ** that fills a whole segment crosses directories.
func (c *compiler) star() string {
	if c.peek(1) != '*' {
		c.pos++
		return "[^/]*"
	}

	segmentStart := c.pos == 0 || c.src[c.pos-1] == '/'
	next := c.pos + 2
	for next < len(c.src) && c.src[next] == '*' {
		next++
	}

	switch {
	case segmentStart && next == len(c.src):
		c.pos = next
		return ".*"
	case segmentStart && c.src[next] == '/':
		c.pos = next + 1
		return "(?:[^/]*/)*"
	default:
		c.pos = next
		return "[^/]*"
	}
}

// extglob handles X(a|b) groups where the marker has already been seen at
// c.pos.
func (c *compiler) extglob(quantifier string) (string, error) {
	c.pos += 2
	alts, err := c.alternatives(')', '|')
	if err != nil {
		return "", err
	}
	return "(?:" + strings.Join(alts, "|") + ")" + quantifier, nil
}

// alternatives reads sep-separated sequences up to and including close.
func (c *compiler) alternatives(closing, sep byte) ([]string, error) {
	var alts []string
	for {
		alt, err := c.sequence(string([]byte{closing, sep}))
		if err != nil {
			return nil, err
		}
		if c.pos >= len(c.src) {
			return nil, fmt.Errorf("missing %q", closing)
		}
		alts = append(alts, alt)
		if c.src[c.pos] == sep {
			c.pos++
			continue
		}
		c.pos++
		return alts, nil
	}
}

func (c *compiler) class() (string, error) {
	var out strings.Builder
	out.WriteByte('[')

	i := c.pos + 1
	if i < len(c.src) && (c.src[i] == '!' || c.src[i] == '^') {
		// A negated class still never matches a separator.
		out.WriteString("^/")
		i++
	}

	first := true
	for ; i < len(c.src); i++ {
		ch := c.src[i]
		switch {
		case ch == ']' && !first:
			out.WriteByte(']')
			c.pos = i + 1
			return out.String(), nil
		case ch == '\\':
			if i+1 >= len(c.src) {
				return "", fmt.Errorf("trailing escape in character class")
			}
			i++
			r, size := utf8.DecodeRuneInString(c.src[i:])
			out.WriteString(classLiteral(r))
			i += size - 1
		case ch == '[' && i+1 < len(c.src) && c.src[i+1] == ':':
			end := strings.Index(c.src[i:], ":]")
			if end < 0 {
				return "", fmt.Errorf("unterminated character class name")
			}
			out.WriteString(c.src[i : i+end+2])
			i += end + 1
		case ch == '[' || ch == ']':
			out.WriteByte('\\')
			out.WriteByte(ch)
		default:
			out.WriteByte(ch)
		}
		first = false
	}

	return "", fmt.Errorf("unterminated character class")
}

// classLiteral renders an escaped rune for use inside a bracket expression.
// ASCII punctuation keeps its backslash so that "-", "^" and "]" stay literal.
func classLiteral(r rune) string {
	if r < utf8.RuneSelf && !isAlnum(byte(r)) {
		return `\` + string(r)
	}
	return string(r)
}

func isAlnum(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

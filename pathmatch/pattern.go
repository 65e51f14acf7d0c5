// Package pathmatch compiles route patterns such as "/users/{id}/files/*"
// into immutable matchers that test request paths and extract named
// parameters.
//
// Pattern syntax, one element per "/"-separated path element:
//
//	/users          literal
//	/users/{id}     parameter (also ":id")
//	/files/*        wildcard; as the final element it matches one or more
//	                trailing elements, elsewhere exactly one non-empty element
//	/v{major}.{n}   mixed literal and parameter text within one element
//
// Request paths are not collapsed: "/users//42" has an empty element and
// does not match "/users/{id}".
//
// Compiled patterns are safe for concurrent use.
package pathmatch

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPattern is returned by Compile for malformed patterns.
var ErrInvalidPattern = errors.New("invalid path pattern")

// Kind identifies the type of a pattern segment.
type Kind int

// Segment kinds.
const (
	Literal Kind = iota
	Parameter
	Multi
	Wildcard
)

func (k Kind) String() string {
	switch k {
	case Literal:
		return "literal"
	case Parameter:
		return "param"
	case Multi:
		return "multi"
	case Wildcard:
		return "wildcard"
	default:
		return "unknown"
	}
}

// Segment is one compiled path element.
type Segment struct {
	Kind Kind
	// Text is the literal text for Literal segments and the parameter name
	// for Parameter segments.
	Text string
	// Inner holds the fragments of a Multi segment.
	Inner []Segment

	names []string
	re    *regexp.Regexp
	reCI  *regexp.Regexp
}

// Pattern is a compiled route pattern.
type Pattern struct {
	raw           string
	segments      []Segment
	names         []string
	trailingSlash bool
	tailWildcard  bool
}

// Options control how a candidate path is compared with a pattern.
type Options struct {
	IgnoreTrailingSlashes bool
	CaseInsensitive       bool
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// Compile parses a pattern string.
func Compile(pattern string) (*Pattern, error) {
	p := &Pattern{raw: pattern}
	p.trailingSlash = len(pattern) > 1 && strings.HasSuffix(pattern, "/")

	elems := splitPath(pattern)
	seen := make(map[string]bool)
	for i, elem := range elems {
		seg, err := parseElement(elem)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, pattern, err)
		}
		for _, name := range seg.paramNames() {
			if seen[name] {
				return nil, fmt.Errorf("%w: %q: duplicate parameter %q", ErrInvalidPattern, pattern, name)
			}
			seen[name] = true
			p.names = append(p.names, name)
		}
		if seg.Kind == Wildcard && i == len(elems)-1 {
			p.tailWildcard = true
		}
		p.segments = append(p.segments, seg)
	}

	return p, nil
}

// String returns the source pattern.
func (p *Pattern) String() string { return p.raw }

// Segments returns a copy of the compiled segments.
func (p *Pattern) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	copy(out, p.segments)
	return out
}

// Names returns the parameter names in declaration order.
func (p *Pattern) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// HasWildcard reports whether the pattern ends in a sub-path wildcard.
func (p *Pattern) HasWildcard() bool { return p.tailWildcard }

func (s Segment) paramNames() []string {
	switch s.Kind {
	case Parameter:
		return []string{s.Text}
	case Multi:
		return s.names
	default:
		return nil
	}
}

func parseElement(elem string) (Segment, error) {
	switch {
	case elem == "*":
		return Segment{Kind: Wildcard}, nil
	case strings.HasPrefix(elem, ":"):
		name := elem[1:]
		if name == "" || strings.ContainsAny(name, "{}*") {
			return Segment{}, fmt.Errorf("bad parameter %q", elem)
		}
		return Segment{Kind: Parameter, Text: name}, nil
	case !strings.ContainsAny(elem, "{}*"):
		return Segment{Kind: Literal, Text: elem}, nil
	}

	inner, err := parseFragments(elem)
	if err != nil {
		return Segment{}, err
	}
	if len(inner) == 1 && inner[0].Kind == Parameter {
		return inner[0], nil
	}

	seg := Segment{Kind: Multi, Inner: inner}
	var expr strings.Builder
	expr.WriteString("^")
	for _, f := range inner {
		switch f.Kind {
		case Literal:
			expr.WriteString(regexp.QuoteMeta(f.Text))
		case Parameter:
			expr.WriteString("([^/]+?)")
			seg.names = append(seg.names, f.Text)
		case Wildcard:
			expr.WriteString("[^/]*?")
		}
	}
	expr.WriteString("$")
	seg.re = regexp.MustCompile(expr.String())
	seg.reCI = regexp.MustCompile("(?i)" + expr.String())
	return seg, nil
}

func parseFragments(elem string) ([]Segment, error) {
	var (
		out []Segment
		lit strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			out = append(out, Segment{Kind: Literal, Text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(elem); i++ {
		switch c := elem[i]; c {
		case '{':
			end := strings.IndexByte(elem[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unclosed '{' in %q", elem)
			}
			name := elem[i+1 : i+1+end]
			if name == "" {
				return nil, fmt.Errorf("empty parameter name in %q", elem)
			}
			if strings.ContainsAny(name, "{*") {
				return nil, fmt.Errorf("nested parameter in %q", elem)
			}
			flush()
			if n := len(out); n > 0 && out[n-1].Kind != Literal {
				return nil, fmt.Errorf("adjacent parameters need literal text between them in %q", elem)
			}
			out = append(out, Segment{Kind: Parameter, Text: name})
			i += end + 1
		case '}':
			return nil, fmt.Errorf("unexpected '}' in %q", elem)
		case '*':
			flush()
			if n := len(out); n > 0 && out[n-1].Kind != Literal {
				return nil, fmt.Errorf("adjacent parameters need literal text between them in %q", elem)
			}
			out = append(out, Segment{Kind: Wildcard})
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return out, nil
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

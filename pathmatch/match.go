package pathmatch

import (
	"net/url"
	"strings"
)

// Param is a single extracted path parameter.
type Param struct {
	Key   string
	Value string
}

// Params holds extracted path parameters in declaration order.
type Params []Param

// Get returns the value for name, or "" if absent.
func (ps Params) Get(name string) string {
	v, _ := ps.Lookup(name)
	return v
}

// Lookup returns the value for name and whether it was present.
func (ps Params) Lookup(name string) (string, bool) {
	for _, p := range ps {
		if p.Key == name {
			return p.Value, true
		}
	}
	return "", false
}

// Map copies the parameters into a map.
func (ps Params) Map() map[string]string {
	m := make(map[string]string, len(ps))
	for _, p := range ps {
		m[p.Key] = p.Value
	}
	return m
}

// Match reports whether path matches the pattern.
func (p *Pattern) Match(path string, opts Options) bool {
	_, ok := p.match(path, opts, false)
	return ok
}

// Params matches path and extracts its parameters. The returned Params is
// empty (not nil) for a matching pattern without parameters.
func (p *Pattern) Params(path string, opts Options) (Params, bool) {
	return p.match(path, opts, true)
}

func (p *Pattern) match(path string, opts Options, extract bool) (Params, bool) {
	elems := splitCandidate(path)

	if !opts.IgnoreTrailingSlashes && !p.tailWildcard {
		hasSlash := len(path) > 1 && strings.HasSuffix(path, "/")
		if hasSlash != p.trailingSlash {
			return nil, false
		}
	}

	// Cheap rejection by element count before touching any text.
	if p.matchesAll() {
		return make(Params, 0), true
	}
	if p.tailWildcard {
		if len(elems) < len(p.segments) {
			return nil, false
		}
	} else if len(elems) != len(p.segments) {
		return nil, false
	}

	var params Params
	if extract {
		params = make(Params, 0, len(p.names))
	}

	last := len(p.segments) - 1
	for i, seg := range p.segments {
		elem := elems[i]
		if p.tailWildcard && i == last {
			if strings.Join(elems[i:], "") == "" {
				return nil, false
			}
			break
		}
		switch seg.Kind {
		case Literal:
			if opts.CaseInsensitive {
				if !strings.EqualFold(seg.Text, elem) {
					return nil, false
				}
			} else if seg.Text != elem {
				return nil, false
			}
		case Parameter:
			if elem == "" {
				return nil, false
			}
			if extract {
				params = append(params, Param{Key: seg.Text, Value: decode(elem)})
			}
		case Wildcard:
			if elem == "" {
				return nil, false
			}
		case Multi:
			re := seg.re
			if opts.CaseInsensitive {
				re = seg.reCI
			}
			m := re.FindStringSubmatch(elem)
			if m == nil {
				return nil, false
			}
			if extract {
				for j, name := range seg.names {
					params = append(params, Param{Key: name, Value: decode(m[j+1])})
				}
			}
		}
	}

	return params, true
}

// matchesAll reports whether the pattern is a lone wildcard such as "*" or
// "/*", which also matches the root path.
func (p *Pattern) matchesAll() bool {
	return p.tailWildcard && len(p.segments) == 1
}

// splitCandidate splits a request path into elements. Unlike splitPath it
// keeps interior empty elements, so "/users//42" has three.
func splitCandidate(path string) []string {
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func decode(s string) string {
	v, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return v
}

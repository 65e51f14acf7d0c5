package relay

import (
	"strings"

	"github.com/bjaus/relay/pathmatch"
)

// entry is a registered handler. Entries are created at registration time
// and never mutated afterwards.
type entry struct {
	stage   Stage
	method  string
	pattern *pathmatch.Pattern
	handler Handler
	ws      WSHandler

	name       string
	roles      []Role
	bodyLimit  int64
	repeatable bool
}

// Describe names the entry for logs, e.g. "ENDPOINT GET /users/{id}".
func (e *entry) Describe() string {
	if e.name != "" {
		return e.name
	}
	var b strings.Builder
	b.WriteString(e.stage.String())
	if e.method != "" {
		b.WriteByte(' ')
		b.WriteString(e.method)
	}
	b.WriteByte(' ')
	b.WriteString(e.pattern.String())
	return b.String()
}

func (e *entry) matches(path string, opts pathmatch.Options) bool {
	return e.pattern.Match(path, opts)
}

// RouteOption configures a route at registration time.
type RouteOption func(*entry)

// WithRoles attaches roles to the route. They are visible through
// Context.RouteRoles from BEFORE-MATCHED handlers onward.
func WithRoles(roles ...Role) RouteOption {
	return func(e *entry) {
		e.roles = append(e.roles, roles...)
	}
}

// WithName overrides the name used for the route in logs.
func WithName(name string) RouteOption {
	return func(e *entry) {
		e.name = name
	}
}

// WithBodyLimit sets a per-route maximum request body size in bytes,
// overriding Config.MaxRequestSize.
func WithBodyLimit(maxBytes int64) RouteOption {
	return func(e *entry) {
		e.bodyLimit = maxBytes
	}
}

// WithRepeatable allows registering an endpoint whose stage, method and
// pattern duplicate an existing one. Only the first match serves requests.
func WithRepeatable() RouteOption {
	return func(e *entry) {
		e.repeatable = true
	}
}

// RouteInfo describes a registered route.
type RouteInfo struct {
	Stage  string   `json:"stage" yaml:"stage"`
	Method string   `json:"method,omitempty" yaml:"method,omitempty"`
	Path   string   `json:"path" yaml:"path"`
	Name   string   `json:"name" yaml:"name"`
	Roles  []string `json:"roles,omitempty" yaml:"roles,omitempty"`
}

func (e *entry) info() RouteInfo {
	ri := RouteInfo{
		Stage:  e.stage.String(),
		Method: e.method,
		Path:   e.pattern.String(),
		Name:   e.Describe(),
	}
	for _, r := range e.roles {
		ri.Roles = append(ri.Roles, string(r))
	}
	return ri
}

package relay

import "strings"

// Routes registers handlers under a path prefix. Router embeds the root
// Routes; Group returns nested ones.
type Routes struct {
	router *Router
	prefix string
	roles  []Role
}

// GroupOption configures a group.
type GroupOption func(*Routes)

// WithGroupRoles adds default roles to every route registered on the group.
func WithGroupRoles(roles ...Role) GroupOption {
	return func(g *Routes) {
		g.roles = append(g.roles, roles...)
	}
}

// Group creates a new route group with the given prefix and options.
func (g *Routes) Group(prefix string, opts ...GroupOption) *Routes {
	child := &Routes{
		router: g.router,
		prefix: joinPath(g.prefix, prefix),
		roles:  append([]Role(nil), g.roles...),
	}
	for _, opt := range opts {
		opt(child)
	}
	return child
}

// Prefix returns the group's path prefix.
func (g *Routes) Prefix() string { return g.prefix }

func (g *Routes) options(opts []RouteOption) []RouteOption {
	if len(g.roles) == 0 {
		return opts
	}
	return append([]RouteOption{WithRoles(g.roles...)}, opts...)
}

// joinPath concatenates a prefix and a pattern with exactly one slash
// between them. A trailing slash on the pattern is kept.
func joinPath(prefix, pattern string) string {
	if prefix == "" {
		return pattern
	}
	prefix = strings.TrimRight(prefix, "/")
	if pattern == "" || pattern == "/" {
		if prefix == "" {
			return "/"
		}
		return prefix
	}
	return prefix + "/" + strings.TrimLeft(pattern, "/")
}

package relay

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// RouteOverview returns an endpoint handler listing every registered route.
// It responds with YAML when the Accept header asks for it or the request
// has ?format=yaml, and JSON otherwise.
func RouteOverview(r *Router) Handler {
	return func(c *Context) error {
		if c.Query("format") == "yaml" || strings.Contains(c.Header("Accept"), "yaml") {
			var buf bytes.Buffer
			if err := r.WriteRoutesYAML(&buf); err != nil {
				return err
			}
			c.ContentType("application/yaml")
			c.Result(&buf)
			return nil
		}
		return c.JSON(r.RouteList())
	}
}

// WriteRoutes writes the route list as indented JSON to w.
func (r *Router) WriteRoutes(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.RouteList())
}

// WriteRoutesYAML writes the route list as YAML to w.
func (r *Router) WriteRoutesYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close() //nolint:errcheck // flushes; the encode error wins
	return enc.Encode(r.RouteList())
}

package relay

import (
	"net/http"
	"strings"
)

// Redirect sets the Location header and status (302 when omitted) and
// skips the remaining handlers.
func (c *Context) Redirect(location string, status ...int) {
	code := http.StatusFound
	if len(status) > 0 {
		code = status[0]
	}
	c.SetHeader("Location", location)
	c.SetStatus(code)
	c.SkipRemainingHandlers()
}

// HTTPSRedirect returns a BEFORE handler that redirects HTTP requests to HTTPS.
func HTTPSRedirect() Handler {
	return func(c *Context) error {
		r := c.Request()
		if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
			c.Redirect("https://"+r.Host+r.URL.RequestURI(), http.StatusMovedPermanently)
		}
		return nil
	}
}

// TrailingSlashRedirect returns a BEFORE handler that strips trailing
// slashes and redirects.
func TrailingSlashRedirect() Handler {
	return func(c *Context) error {
		r := c.Request()
		if r.URL.Path != "/" && strings.HasSuffix(r.URL.Path, "/") {
			target := strings.TrimRight(r.URL.Path, "/")
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			c.Redirect(target, http.StatusMovedPermanently)
		}
		return nil
	}
}

// NonWWWRedirect returns a BEFORE handler that redirects the www subdomain
// to non-www.
func NonWWWRedirect() Handler {
	return func(c *Context) error {
		r := c.Request()
		if strings.HasPrefix(r.Host, "www.") {
			scheme := "http"
			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				scheme = "https"
			}
			c.Redirect(scheme+"://"+strings.TrimPrefix(r.Host, "www.")+r.URL.RequestURI(), http.StatusMovedPermanently)
		}
		return nil
	}
}

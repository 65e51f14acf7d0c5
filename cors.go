package relay

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS handler.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int // seconds
}

// CORS returns a BEFORE handler that sets Cross-Origin Resource Sharing
// headers and answers preflight requests with 204.
// If no config is provided, permissive defaults are used.
func CORS(cfg ...CORSConfig) Handler {
	c := CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}
	if len(cfg) > 0 {
		c = cfg[0]
	}

	origins := strings.Join(c.AllowOrigins, ", ")
	methods := strings.Join(c.AllowMethods, ", ")
	headers := strings.Join(c.AllowHeaders, ", ")
	expose := strings.Join(c.ExposeHeaders, ", ")
	maxAge := ""
	if c.MaxAge > 0 {
		maxAge = strconv.Itoa(c.MaxAge)
	}

	return func(ctx *Context) error {
		ctx.SetHeader("Access-Control-Allow-Origin", origins)
		ctx.SetHeader("Access-Control-Allow-Methods", methods)
		ctx.SetHeader("Access-Control-Allow-Headers", headers)

		if expose != "" {
			ctx.SetHeader("Access-Control-Expose-Headers", expose)
		}
		if c.AllowCredentials {
			ctx.SetHeader("Access-Control-Allow-Credentials", "true")
		}
		if maxAge != "" {
			ctx.SetHeader("Access-Control-Max-Age", maxAge)
		}

		ctx.SetHeader("Vary", "Origin")

		if ctx.Method() == http.MethodOptions && ctx.Header("Access-Control-Request-Method") != "" {
			ctx.SetStatus(http.StatusNoContent)
			ctx.SkipRemainingHandlers()
		}
		return nil
	}
}

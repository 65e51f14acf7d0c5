package relay

import "strconv"

// SecureConfig configures the SecureHeaders handler.
type SecureConfig struct {
	ContentTypeNosniff bool   // default: true → X-Content-Type-Options: nosniff
	FrameDeny          bool   // default: true → X-Frame-Options: DENY
	HSTSMaxAge         int    // default: 0 (disabled). If >0: Strict-Transport-Security
	XSSProtection      string // default: "1; mode=block"
	ReferrerPolicy     string // default: "strict-origin-when-cross-origin"
}

// SecureHeaders returns a handler that sets security response headers.
// With no arguments, it uses sensible defaults.
func SecureHeaders(cfg ...SecureConfig) Handler {
	c := SecureConfig{
		ContentTypeNosniff: true,
		FrameDeny:          true,
		XSSProtection:      "1; mode=block",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}
	if len(cfg) > 0 {
		c = cfg[0]
	}

	return func(ctx *Context) error {
		if c.ContentTypeNosniff {
			ctx.SetHeader("X-Content-Type-Options", "nosniff")
		}
		if c.FrameDeny {
			ctx.SetHeader("X-Frame-Options", "DENY")
		}
		if c.HSTSMaxAge > 0 {
			ctx.SetHeader("Strict-Transport-Security", "max-age="+strconv.Itoa(c.HSTSMaxAge))
		}
		if c.XSSProtection != "" {
			ctx.SetHeader("X-XSS-Protection", c.XSSProtection)
		}
		if c.ReferrerPolicy != "" {
			ctx.SetHeader("Referrer-Policy", c.ReferrerPolicy)
		}
		return nil
	}
}

package relay

import (
	"crypto/subtle"
	"net/http"

	"github.com/google/uuid"
)

// CSRFConfig configures the CSRF handler.
type CSRFConfig struct {
	CookieName string // default: "_csrf"
	HeaderName string // default: "X-CSRF-Token"
	Secure     bool   // cookie secure flag
	SameSite   http.SameSite
}

type csrfToken string

// CSRF returns a BEFORE handler that implements double-submit cookie CSRF
// protection. Safe methods (GET, HEAD, OPTIONS) are not checked. A
// mismatch fails the request with 403.
func CSRF(cfg ...CSRFConfig) Handler {
	c := CSRFConfig{
		CookieName: "_csrf",
		HeaderName: "X-CSRF-Token",
		SameSite:   http.SameSiteLaxMode,
	}
	if len(cfg) > 0 {
		if cfg[0].CookieName != "" {
			c.CookieName = cfg[0].CookieName
		}
		if cfg[0].HeaderName != "" {
			c.HeaderName = cfg[0].HeaderName
		}
		c.Secure = cfg[0].Secure
		if cfg[0].SameSite != 0 {
			c.SameSite = cfg[0].SameSite
		}
	}

	return func(ctx *Context) error {
		token := ""
		if cookie, err := ctx.Request().Cookie(c.CookieName); err == nil {
			token = cookie.Value
		}

		if token == "" {
			token = uuid.NewString()
			ctx.SetCookie(&http.Cookie{
				Name:     c.CookieName,
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				Secure:   c.Secure,
				SameSite: c.SameSite,
			})
		}
		SetValue(ctx, csrfToken(token))

		if isSafeMethod(ctx.Method()) {
			return nil
		}

		header := ctx.Header(c.HeaderName)
		if header == "" || subtle.ConstantTimeCompare([]byte(header), []byte(token)) != 1 {
			return Forbidden("CSRF token mismatch")
		}
		return nil
	}
}

// GetCSRFToken returns the token assigned by CSRF, or "".
func GetCSRFToken(c *Context) string {
	token, _ := GetValue[csrfToken](c)
	return string(token)
}

// SetCookie adds a Set-Cookie header to the response.
func (c *Context) SetCookie(cookie *http.Cookie) {
	if v := cookie.String(); v != "" {
		c.header.Add("Set-Cookie", v)
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

package relay

import "github.com/google/uuid"

type requestID string

// RequestIDConfig configures the RequestID handler.
type RequestIDConfig struct {
	Header    string        // default: "X-Request-ID"
	Generator func() string // default: random UUID
}

// RequestID returns a BEFORE handler that assigns a unique request ID to
// each request. The ID is read from the request header (if present) or
// generated. It is stored on the Context and set on the response header.
func RequestID(cfg ...RequestIDConfig) Handler {
	c := RequestIDConfig{
		Header:    "X-Request-ID",
		Generator: uuid.NewString,
	}
	if len(cfg) > 0 {
		if cfg[0].Header != "" {
			c.Header = cfg[0].Header
		}
		if cfg[0].Generator != nil {
			c.Generator = cfg[0].Generator
		}
	}

	return func(ctx *Context) error {
		id := ctx.Header(c.Header)
		if id == "" {
			id = c.Generator()
		}
		SetValue(ctx, requestID(id))
		ctx.SetHeader(c.Header, id)
		return nil
	}
}

// GetRequestID returns the ID assigned by RequestID, or "".
func GetRequestID(c *Context) string {
	id, _ := GetValue[requestID](c)
	return string(id)
}

package relay

import (
	"log/slog"
	"time"
)

// RequestLogger is called once per request after the response is written.
type RequestLogger func(c *Context, elapsed time.Duration)

// SlogRequestLogger returns a RequestLogger that logs each request using the
// provided slog.Logger.
func SlogRequestLogger(logger *slog.Logger) RequestLogger {
	return func(c *Context, elapsed time.Duration) {
		attrs := []slog.Attr{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.StatusCode()),
			slog.Duration("latency", elapsed),
			slog.String("remote", c.req.RemoteAddr),
		}
		if ep := c.EndpointPath(); ep != "" {
			attrs = append(attrs, slog.String("endpoint", ep))
		}
		if id := GetRequestID(c); id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}

		logger.LogAttrs(c.Context(), slog.LevelInfo, "request", attrs...)
	}
}

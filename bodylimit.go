package relay

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Body reads the request body once, enforcing the route's WithBodyLimit or
// Config.MaxRequestSize. A body over the limit yields a 413 error.
func (c *Context) Body() ([]byte, error) {
	if c.bodyRead {
		return c.body, c.bodyErr
	}
	c.bodyRead = true
	c.body, c.bodyErr = readLimitedBody(c.w, c.req, c.bodyLimit())
	return c.body, c.bodyErr
}

// BodyString returns the request body as a string.
func (c *Context) BodyString() (string, error) {
	b, err := c.Body()
	return string(b), err
}

func (c *Context) bodyLimit() int64 {
	if c.endpoint != nil && c.endpoint.bodyLimit > 0 {
		return c.endpoint.bodyLimit
	}
	return c.router.cfg.MaxRequestSize
}

// readLimitedBody reads at most maxBytes. Zero disables the limit.
func readLimitedBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	if maxBytes <= 0 {
		return io.ReadAll(r.Body)
	}
	if r.ContentLength > maxBytes {
		return nil, tooLarge(maxBytes)
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, tooLarge(maxBytes)
		}
		return nil, err
	}
	return data, nil
}

func tooLarge(maxBytes int64) error {
	return ContentTooLarge(fmt.Sprintf("Request body exceeds %d bytes", maxBytes))
}

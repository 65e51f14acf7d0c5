package relay

import (
	"bytes"
	"net/http"
)

// FromHTTP adapts a net/http handler into a Handler. The handler writes into
// the Context's buffered response, so it takes part in finalize like any
// other handler.
func FromHTTP(h http.Handler) Handler {
	return func(c *Context) error {
		rec := &bufferedWriter{header: c.header}
		h.ServeHTTP(rec, c.req)
		if rec.status != 0 {
			c.SetStatus(rec.status)
		}
		if rec.wrote {
			c.Result(&rec.buf)
		}
		return nil
	}
}

// bufferedWriter is an http.ResponseWriter that writes into the Context.
type bufferedWriter struct {
	header http.Header
	status int
	buf    bytes.Buffer
	wrote  bool
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	b.wrote = true
	return b.buf.Write(p)
}

package relay

import (
	"bytes"
	"io"
	"net/http"
)

// write copies the buffered response onto the connection.
func (p *pipeline) write() error {
	c := p.ctx
	req := c.req
	h := p.w.Header()
	for k, vs := range c.header {
		h[k] = vs
	}

	status := c.status
	body := c.result
	if body != nil && h.Get("Content-Type") == "" {
		h.Set("Content-Type", p.router.cfg.DefaultContentType)
	}

	if body != nil && p.router.cfg.ETags && etagEligible(req.Method, status) {
		data, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		tag := etagFor(data)
		h.Set("ETag", tag)
		if etagMatches(req.Header.Get("If-None-Match"), tag) {
			h.Del("Content-Type")
			h.Del("Content-Length")
			p.w.WriteHeader(http.StatusNotModified)
			return nil
		}
		body = bytes.NewReader(data)
	}

	if body == nil || req.Method == http.MethodHead {
		p.w.WriteHeader(status)
		return nil
	}

	return p.router.writeBody(p.w, req, status, body)
}

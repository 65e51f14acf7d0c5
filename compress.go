package relay

import (
	"bufio"
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"strings"
)

// writeBody writes status and body, gzip-compressing when the client accepts
// it, the content type is listed in Config.Compression.Types, and the body
// is at least Config.Compression.MinSize bytes.
func (r *Router) writeBody(w http.ResponseWriter, req *http.Request, status int, body io.Reader) error {
	cfg := r.cfg.Compression
	if !cfg.Enabled || !strings.Contains(req.Header.Get("Accept-Encoding"), "gzip") || !r.shouldCompress(w.Header()) {
		w.WriteHeader(status)
		_, err := io.Copy(w, body)
		return err
	}

	w.Header().Add("Vary", "Accept-Encoding")

	br := bufio.NewReaderSize(body, max(cfg.MinSize, 512))
	if _, err := br.Peek(cfg.MinSize); err != nil {
		if !errors.Is(err, io.EOF) {
			return err
		}
		w.WriteHeader(status)
		_, err := io.Copy(w, br)
		return err
	}

	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Del("Content-Length")
	w.WriteHeader(status)

	gz := r.gzipPool.Get().(*gzip.Writer) //nolint:errcheck,forcetypeassert // pool.New always returns *gzip.Writer
	gz.Reset(w)
	defer r.gzipPool.Put(gz)

	if _, err := io.Copy(gz, br); err != nil {
		return err
	}
	return gz.Close()
}

func (r *Router) shouldCompress(h http.Header) bool {
	contentType := h.Get("Content-Type")
	// Skip SSE and already-compressed responses.
	if strings.Contains(contentType, "event-stream") {
		return false
	}
	if h.Get("Content-Encoding") != "" {
		return false
	}
	for _, t := range r.cfg.Compression.Types {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

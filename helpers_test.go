package relay_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bjaus/relay"
)

type requestOption func(*http.Request)

func withHeader(name, value string) requestOption {
	return func(r *http.Request) {
		r.Header.Set(name, value)
	}
}

func withContext(ctx context.Context) requestOption {
	return func(r *http.Request) {
		*r = *r.WithContext(ctx)
	}
}

// serve runs one request through r in-process.
func serve(t *testing.T, r *relay.Router, method, target string, body io.Reader, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func text(body string) relay.Handler {
	return func(c *relay.Context) error {
		c.ResultString(body)
		return nil
	}
}

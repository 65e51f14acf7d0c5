// Package relaytest provides test helpers for relay routers.
package relaytest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bjaus/relay"
)

// Client wraps an httptest.Server for convenient router testing.
type Client struct {
	Server *httptest.Server
}

// NewClient creates a test client from a router.
func NewClient(t testing.TB, r *relay.Router) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &Client{Server: srv}
}

// Response holds a received response with its body read.
type Response struct {
	Status  int
	Headers http.Header
	Body    string
}

// RequestOption modifies an outgoing request.
type RequestOption func(*http.Request)

// WithHeader sets a request header.
func WithHeader(name, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(name, value)
	}
}

// Do sends a request and reads the whole response body.
func (c *Client) Do(t testing.TB, method, path string, body io.Reader, opts ...RequestOption) *Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, c.Server.URL+path, body)
	if err != nil {
		t.Fatalf("relaytest: create request: %v", err)
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("relaytest: execute request: %v", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			t.Errorf("relaytest: close body: %v", closeErr)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("relaytest: read body: %v", err)
	}
	return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: string(data)}
}

// Get sends a GET request.
func (c *Client) Get(t testing.TB, path string, opts ...RequestOption) *Response {
	t.Helper()
	return c.Do(t, http.MethodGet, path, nil, opts...)
}

// Post sends a POST request with a raw body.
func (c *Client) Post(t testing.TB, path, body string, opts ...RequestOption) *Response {
	t.Helper()
	return c.Do(t, http.MethodPost, path, bytes.NewReader([]byte(body)), opts...)
}

// JSONResponse holds a response whose body was decoded as JSON.
type JSONResponse[T any] struct {
	Status  int
	Headers http.Header
	Body    *T
}

// GetJSON sends a GET request and decodes the body into T.
func GetJSON[T any](t testing.TB, c *Client, path string, opts ...RequestOption) *JSONResponse[T] {
	t.Helper()
	return decode[T](t, c.Do(t, http.MethodGet, path, nil, opts...))
}

// PostJSON sends body as JSON and decodes the response into T.
func PostJSON[Req, T any](t testing.TB, c *Client, path string, body *Req, opts ...RequestOption) *JSONResponse[T] {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("relaytest: marshal request body: %v", err)
	}
	opts = append([]RequestOption{WithHeader("Content-Type", "application/json")}, opts...)
	return decode[T](t, c.Do(t, http.MethodPost, path, bytes.NewReader(b), opts...))
}

func decode[T any](t testing.TB, resp *Response) *JSONResponse[T] {
	t.Helper()
	result := &JSONResponse[T]{Status: resp.Status, Headers: resp.Headers}
	if resp.Body == "" {
		return result
	}
	var decoded T
	if err := json.Unmarshal([]byte(resp.Body), &decoded); err != nil {
		return result
	}
	result.Body = &decoded
	return result
}

// Serve runs req through r in-process and returns the recorded response.
func Serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

package relay

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/bjaus/relay/pathmatch"
)

// Context is the per-request value bag threaded through every handler. The
// pipeline owns it; handlers may read and mutate it but must not retain it
// after they return.
//
// Response headers, status and result are buffered on the Context and only
// written to the connection when the pipeline finalizes.
type Context struct {
	req    *http.Request
	w      http.ResponseWriter
	router *Router
	logger *slog.Logger
	start  time.Time

	path     string
	stage    Stage
	endpoint *entry
	matched  *pathmatch.Pattern
	params   pathmatch.Params
	roles    []Role

	status int
	header http.Header
	result io.Reader

	attrs    map[any]any
	body     []byte
	bodyErr  error
	bodyRead bool

	futureSupplier func() *Future
	skipRemaining  bool
	aborted        bool
}

func newContext(r *Router, w http.ResponseWriter, req *http.Request, path string) *Context {
	return &Context{
		req:    req,
		w:      w,
		router: r,
		logger: r.logger,
		start:  time.Now(),
		path:   path,
		status: http.StatusOK,
		header: make(http.Header),
	}
}

// Request returns the underlying *http.Request.
func (c *Context) Request() *http.Request { return c.req }

// ResponseWriter returns the underlying writer. Writing to it directly
// bypasses finalize; prefer Result and SetHeader.
func (c *Context) ResponseWriter() http.ResponseWriter { return c.w }

// Context returns the request's context.Context.
func (c *Context) Context() context.Context { return c.req.Context() }

// Logger returns the router logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Method returns the request method.
func (c *Context) Method() string { return c.req.Method }

// Path returns the decoded request path.
func (c *Context) Path() string { return c.req.URL.Path }

// Stage returns the stage of the handler currently running.
func (c *Context) Stage() Stage { return c.stage }

// EndpointPath returns the pattern of the most recently matched handler,
// e.g. "/users/{id}". Empty until a handler has matched.
func (c *Context) EndpointPath() string {
	if c.matched == nil {
		return ""
	}
	return c.matched.String()
}

// PathParam returns a path parameter of the matched pattern, or "".
func (c *Context) PathParam(name string) string { return c.params.Get(name) }

// PathParams returns every path parameter in declaration order.
func (c *Context) PathParams() pathmatch.Params { return c.params }

// RouteRoles returns the roles of the matched endpoint.
func (c *Context) RouteRoles() []Role { return c.roles }

// Query returns the first query parameter value for name.
func (c *Context) Query(name string) string { return c.req.URL.Query().Get(name) }

// QueryParams returns all query parameters.
func (c *Context) QueryParams() url.Values { return c.req.URL.Query() }

// FormValue returns the first form value for name.
func (c *Context) FormValue(name string) string { return c.req.FormValue(name) }

// Header returns a request header.
func (c *Context) Header(name string) string { return c.req.Header.Get(name) }

// IP returns the remote host without the port.
func (c *Context) IP() string {
	host, _, err := net.SplitHostPort(c.req.RemoteAddr)
	if err != nil {
		return c.req.RemoteAddr
	}
	return host
}

// SetHeader sets a response header.
func (c *Context) SetHeader(name, value string) { c.header.Set(name, value) }

// ResponseHeaders returns the buffered response headers.
func (c *Context) ResponseHeaders() http.Header { return c.header }

// ContentType sets the response Content-Type.
func (c *Context) ContentType(ct string) { c.header.Set("Content-Type", ct) }

// SetStatus sets the response status code.
func (c *Context) SetStatus(code int) { c.status = code }

// StatusCode returns the response status code (200 unless changed).
func (c *Context) StatusCode() int { return c.status }

// Result replaces the response body. A replaced body that implements
// io.Closer is closed.
func (c *Context) Result(r io.Reader) {
	if c.result != nil && c.result != r {
		if cl, ok := c.result.(io.Closer); ok {
			if err := cl.Close(); err != nil {
				c.logger.Debug("close replaced result", "err", err)
			}
		}
	}
	c.result = r
}

// ResultString sets the response body to s.
func (c *Context) ResultString(s string) { c.Result(bytes.NewReader([]byte(s))) }

// ResultBytes sets the response body to b.
func (c *Context) ResultBytes(b []byte) { c.Result(bytes.NewReader(b)) }

// HasResult reports whether a response body has been set.
func (c *Context) HasResult() bool { return c.result != nil }

// ResultText drains the current body and returns it as a string. The body is
// kept, so it is still written at finalize.
func (c *Context) ResultText() string {
	if c.result == nil {
		return ""
	}
	data, err := io.ReadAll(c.result)
	if err != nil {
		c.logger.Debug("read result", "err", err)
	}
	c.Result(bytes.NewReader(data))
	return string(data)
}

// HTML sets an HTML response body.
func (c *Context) HTML(s string) {
	c.ContentType("text/html; charset=utf-8")
	c.ResultString(s)
}

// JSON encodes v with the router's JSONMapper and sets it as the body.
func (c *Context) JSON(v any) error {
	var buf bytes.Buffer
	if err := c.router.json.Encode(&buf, v); err != nil {
		return err
	}
	c.ContentType(c.router.json.ContentType())
	c.Result(&buf)
	return nil
}

// SkipRemainingHandlers bypasses every skippable task still queued without
// marking the request as failed. AFTER-MATCHED, ERROR and AFTER handlers
// still run.
func (c *Context) SkipRemainingHandlers() { c.skipRemaining = true }

// Future suspends the pipeline after the current handler returns. The
// supplier is called once to obtain the future; when it settles, the value
// becomes the response body (strings, []byte and io.Reader as-is, anything
// else as JSON) and the pipeline resumes. Calling Future twice from one
// handler returns ErrFutureAlreadySet.
func (c *Context) Future(supplier func() *Future) error {
	if c.futureSupplier != nil {
		return ErrFutureAlreadySet
	}
	c.futureSupplier = supplier
	return nil
}

func (c *Context) takeFutureSupplier() func() *Future {
	s := c.futureSupplier
	c.futureSupplier = nil
	return s
}

func (c *Context) applyFutureValue(v any) error {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		c.ResultString(val)
	case []byte:
		c.ResultBytes(val)
	case io.Reader:
		c.Result(val)
	default:
		return c.JSON(val)
	}
	return nil
}

// Set stores a request-scoped attribute.
func (c *Context) Set(key, value any) {
	if c.attrs == nil {
		c.attrs = make(map[any]any)
	}
	c.attrs[key] = value
}

// Get returns a request-scoped attribute, or nil.
func (c *Context) Get(key any) any { return c.attrs[key] }

type contextKey[T any] struct{}

// SetValue stores a typed value on the context, keyed by its type.
func SetValue[T any](c *Context, val T) {
	c.Set(contextKey[T]{}, val)
}

// GetValue retrieves a typed value stored with SetValue.
func GetValue[T any](c *Context) (T, bool) {
	val, ok := c.Get(contextKey[T]{}).(T)
	return val, ok
}

// update records the entry about to run. Parameters are only re-extracted
// when the matched pattern changes.
func (c *Context) update(e *entry) {
	c.stage = e.stage
	if c.matched == e.pattern {
		return
	}
	c.matched = e.pattern
	c.params, _ = e.pattern.Params(c.path, c.router.matchOptions())
}

func (c *Context) setRouteRoles(roles []Role) { c.roles = roles }

// closeResult releases the body once it has been written.
func (c *Context) closeResult() {
	if cl, ok := c.result.(io.Closer); ok {
		if err := cl.Close(); err != nil {
			c.logger.Debug("close result", "err", err)
		}
	}
}

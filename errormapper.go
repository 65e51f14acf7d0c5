package relay

import (
	"runtime/debug"
	"strings"
	"sync"
)

type errorHandler struct {
	status      int
	contentType string
	handler     Handler
}

// errorMapper runs the handlers registered for the response status during
// the ERROR stage. Handlers are read without locking once frozen.
type errorMapper struct {
	mu       sync.Mutex
	frozen   bool
	handlers []errorHandler
}

// Error registers h to run for responses with the given status, whatever
// the client accepts.
func (r *Router) Error(status int, h Handler) error {
	return r.ErrorFor(status, "*", h)
}

// ErrorFor registers h to run for responses with the given status when the
// request's Accept header contains contentType. Use "*" to match any.
func (r *Router) ErrorFor(status int, contentType string, h Handler) error {
	if contentType == "" {
		contentType = "*"
	}
	return r.errors.add(errorHandler{
		status:      status,
		contentType: strings.ToLower(contentType),
		handler:     h,
	})
}

func (m *errorMapper) add(eh errorHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return ErrRouterStarted
	}
	m.handlers = append(m.handlers, eh)
	return nil
}

func (m *errorMapper) freeze() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = true
}

// handle runs every matching handler in registration order. Failures are
// routed to the exception mapper.
func (m *errorMapper) handle(c *Context, exceptions *exceptionMapper) {
	accept := strings.ToLower(c.Header("Accept"))
	for _, eh := range m.handlers {
		if eh.status != c.status {
			continue
		}
		if eh.contentType != "*" && !strings.Contains(accept, eh.contentType) {
			continue
		}
		if err := runGuarded(eh.handler, c); err != nil {
			exceptions.handle(err, c)
		}
	}
}

// runGuarded calls h, turning a panic into a *PanicError.
func runGuarded(h Handler, c *Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return h(c)
}

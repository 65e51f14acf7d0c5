package relay

import (
	"errors"
	"reflect"
	"sync"
)

// ExceptionHandler renders a failure of type E.
type ExceptionHandler[E error] func(err E, c *Context)

type exceptionFunc func(err error, c *Context)

type interfaceHandler struct {
	typ reflect.Type
	h   exceptionFunc
}

// exceptionMapper turns handler failures into responses. Handlers registered
// for a concrete type win; interface handlers are tried in registration
// order. The lookup result for each concrete type is cached.
type exceptionMapper struct {
	mu         sync.RWMutex
	exact      map[reflect.Type]exceptionFunc
	interfaces []interfaceHandler
	resolved   sync.Map // reflect.Type -> exceptionFunc (nil when nothing matches)
}

func newExceptionMapper() *exceptionMapper {
	return &exceptionMapper{exact: make(map[reflect.Type]exceptionFunc)}
}

// Exception registers h for failures of type E anywhere in the error chain.
// E may be a concrete type such as *MyError or an interface type; a later
// registration for the same E replaces the earlier one.
func Exception[E error](r *Router, h ExceptionHandler[E]) {
	typ := reflect.TypeFor[E]()
	fn := func(err error, c *Context) {
		h(err.(E), c) //nolint:errcheck,forcetypeassert // the type was matched by the mapper
	}
	r.exceptions.register(typ, fn)
}

func (m *exceptionMapper) register(typ reflect.Type, fn exceptionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if typ.Kind() == reflect.Interface {
		for i, ih := range m.interfaces {
			if ih.typ == typ {
				m.interfaces[i].h = fn
				m.resolved.Clear()
				return
			}
		}
		m.interfaces = append(m.interfaces, interfaceHandler{typ: typ, h: fn})
	} else {
		m.exact[typ] = fn
	}
	m.resolved.Clear()
}

func (m *exceptionMapper) lookup(typ reflect.Type) exceptionFunc {
	if v, ok := m.resolved.Load(typ); ok {
		return v.(exceptionFunc) //nolint:errcheck,forcetypeassert // only exceptionFunc is stored
	}

	// Filled under the read lock: register clears the cache under the
	// write lock.
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn, ok := m.exact[typ]
	if !ok {
		for _, ih := range m.interfaces {
			if typ.Implements(ih.typ) {
				fn = ih.h
				break
			}
		}
	}
	m.resolved.Store(typ, fn)
	return fn
}

// find walks the error chain depth first and returns the first registered
// handler together with the error it matched.
func (m *exceptionMapper) find(err error) (exceptionFunc, error) {
	if err == nil {
		return nil, nil
	}
	if fn := m.lookup(reflect.TypeOf(err)); fn != nil {
		return fn, err
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return m.find(u.Unwrap())
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if fn, match := m.find(inner); fn != nil {
				return fn, match
			}
		}
	}
	return nil, nil
}

// handle renders err. It never fails: a panicking exception handler is
// logged and replaced by a plain 500.
func (m *exceptionMapper) handle(err error, c *Context) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("exception handler panicked",
				"panic", rec,
				"err", err,
				"method", c.Method(),
				"path", c.Path(),
			)
			renderHTTPError(c, InternalServerError("Internal server error"))
		}
	}()

	for {
		fe, ok := err.(*FutureError)
		if !ok {
			break
		}
		err = fe.Err
	}

	if isClientAbort(c.req.Context(), err) {
		c.aborted = true
		c.logger.Debug("client aborted request", "err", err, "method", c.Method(), "path", c.Path())
		return
	}

	if fn, match := m.find(err); fn != nil {
		fn(match, c)
		return
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		renderHTTPError(c, err)
		return
	}

	attrs := []any{"err", err, "method", c.Method(), "path", c.Path()}
	var pe *PanicError
	if errors.As(err, &pe) {
		attrs = append(attrs, "stack", string(pe.Stack))
	}
	c.logger.Error("uncaught error in request handler", attrs...)
	renderHTTPError(c, InternalServerError("Internal server error"))
}

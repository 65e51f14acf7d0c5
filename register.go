package relay

import (
	"fmt"
	"net/http"

	"github.com/bjaus/relay/pathmatch"
)

// AddHandler registers h for the given stage, method and pattern. Method is
// ignored for every stage except StageEndpoint. It fails with
// ErrRouterStarted once the router has served a request, with
// ErrRouteConflict for a duplicate endpoint, and with
// pathmatch.ErrInvalidPattern for a malformed pattern.
func (g *Routes) AddHandler(stage Stage, method, pattern string, h Handler, opts ...RouteOption) error {
	if stage.websocket() {
		return fmt.Errorf("relay: use AddWSHandler for %s handlers", stage)
	}
	if h == nil {
		return fmt.Errorf("relay: nil handler for %s %s", stage, pattern)
	}
	if stage != StageEndpoint {
		method = ""
	}
	e, err := g.newEntry(stage, method, pattern, opts)
	if err != nil {
		return err
	}
	e.handler = h
	return g.router.registry.add(e)
}

// AddWSHandler registers a WebSocket handler for one of the WebSocket stages.
func (g *Routes) AddWSHandler(stage Stage, pattern string, h WSHandler, opts ...RouteOption) error {
	if !stage.websocket() {
		return fmt.Errorf("relay: %s is not a WebSocket stage", stage)
	}
	if h == nil {
		return fmt.Errorf("relay: nil WebSocket handler for %s", pattern)
	}
	e, err := g.newEntry(stage, "", pattern, opts)
	if err != nil {
		return err
	}
	e.ws = h
	return g.router.registry.add(e)
}

func (g *Routes) newEntry(stage Stage, method, pattern string, opts []RouteOption) (*entry, error) {
	p, err := pathmatch.Compile(joinPath(g.prefix, pattern))
	if err != nil {
		return nil, err
	}
	e := &entry{stage: stage, method: method, pattern: p}
	for _, opt := range g.options(opts) {
		opt(e)
	}
	return e, nil
}

func (g *Routes) must(err error) {
	if err != nil {
		panic(err)
	}
}

// Before registers a handler that runs before endpoint matching. The
// registration helpers below panic where AddHandler would return an error.
func (g *Routes) Before(pattern string, h Handler, opts ...RouteOption) {
	g.must(g.AddHandler(StageBefore, "", pattern, h, opts...))
}

// BeforeMatched registers a handler that runs once an endpoint has matched.
func (g *Routes) BeforeMatched(pattern string, h Handler, opts ...RouteOption) {
	g.must(g.AddHandler(StageBeforeMatched, "", pattern, h, opts...))
}

// AfterMatched registers a handler that runs after a matched endpoint, even
// when the request failed.
func (g *Routes) AfterMatched(pattern string, h Handler, opts ...RouteOption) {
	g.must(g.AddHandler(StageAfterMatched, "", pattern, h, opts...))
}

// After registers a handler that runs last, for every request.
func (g *Routes) After(pattern string, h Handler, opts ...RouteOption) {
	g.must(g.AddHandler(StageAfter, "", pattern, h, opts...))
}

// Handle registers an endpoint for an arbitrary method.
func (g *Routes) Handle(method, pattern string, h Handler, opts ...RouteOption) {
	g.must(g.AddHandler(StageEndpoint, method, pattern, h, opts...))
}

// Get registers a GET endpoint. HEAD requests fall back to it.
func (g *Routes) Get(pattern string, h Handler, opts ...RouteOption) {
	g.Handle(http.MethodGet, pattern, h, opts...)
}

// Post registers a POST endpoint.
func (g *Routes) Post(pattern string, h Handler, opts ...RouteOption) {
	g.Handle(http.MethodPost, pattern, h, opts...)
}

// Put registers a PUT endpoint.
func (g *Routes) Put(pattern string, h Handler, opts ...RouteOption) {
	g.Handle(http.MethodPut, pattern, h, opts...)
}

// Patch registers a PATCH endpoint.
func (g *Routes) Patch(pattern string, h Handler, opts ...RouteOption) {
	g.Handle(http.MethodPatch, pattern, h, opts...)
}

// Delete registers a DELETE endpoint.
func (g *Routes) Delete(pattern string, h Handler, opts ...RouteOption) {
	g.Handle(http.MethodDelete, pattern, h, opts...)
}

// Head registers a HEAD endpoint.
func (g *Routes) Head(pattern string, h Handler, opts ...RouteOption) {
	g.Handle(http.MethodHead, pattern, h, opts...)
}

// Options registers an OPTIONS endpoint.
func (g *Routes) Options(pattern string, h Handler, opts ...RouteOption) {
	g.Handle(http.MethodOptions, pattern, h, opts...)
}

// WS registers a WebSocket endpoint.
func (g *Routes) WS(pattern string, h WSHandler, opts ...RouteOption) {
	g.must(g.AddWSHandler(StageWSEndpoint, pattern, h, opts...))
}

// WSBefore registers WebSocket callbacks that run before the endpoint's.
func (g *Routes) WSBefore(pattern string, h WSHandler, opts ...RouteOption) {
	g.must(g.AddWSHandler(StageWSBefore, pattern, h, opts...))
}

// WSAfter registers WebSocket callbacks that run after the endpoint's.
func (g *Routes) WSAfter(pattern string, h WSHandler, opts ...RouteOption) {
	g.must(g.AddWSHandler(StageWSAfter, pattern, h, opts...))
}

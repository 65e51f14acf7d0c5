package relay

import (
	"fmt"
	"net/http"
)

// stageInitializers queue the tasks of each stage for one request.
var stageInitializers = map[Stage]func(p *pipeline){
	StageBefore:        initBefore,
	StageBeforeMatched: initBeforeMatched,
	StageEndpoint:      initEndpoint,
	StageAfterMatched:  initAfterMatched,
	StageError:         initError,
	StageAfter:         initAfter,
}

func initBefore(p *pipeline) {
	p.submitEntries(StageBefore)
}

func initBeforeMatched(p *pipeline) {
	if p.resolveEndpoint() != nil {
		p.submitEntries(StageBeforeMatched)
	}
}

func initEndpoint(p *pipeline) {
	ep := p.resolveEndpoint()
	if ep == nil {
		p.submit(task{
			name:      "endpoint not found",
			skippable: true,
			action:    p.noEndpoint,
		})
		return
	}
	p.submit(p.entryTask(ep))
}

func initAfterMatched(p *pipeline) {
	if p.resolveEndpoint() != nil {
		p.submitEntries(StageAfterMatched)
	}
}

func initError(p *pipeline) {
	p.submit(task{
		name: "error mapper",
		action: func(c *Context) error {
			c.stage = StageError
			p.router.errors.handle(c, p.router.exceptions)
			return nil
		},
	})
}

func initAfter(p *pipeline) {
	p.submitEntries(StageAfter)
}

func (p *pipeline) submitEntries(stage Stage) {
	if !p.inContext {
		return
	}
	for _, e := range p.snap.findEntries(stage, "", p.path) {
		p.submit(p.entryTask(e))
	}
}

// resolveEndpoint looks up the endpoint once per request. HEAD falls back to
// the GET endpoint.
func (p *pipeline) resolveEndpoint() *entry {
	if p.resolved {
		return p.endpoint
	}
	p.resolved = true
	if !p.inContext {
		return nil
	}

	method := p.ctx.Method()
	p.endpoint = p.snap.findEndpoint(StageEndpoint, method, p.path)
	if p.endpoint == nil && method == http.MethodHead {
		p.endpoint = p.snap.findEndpoint(StageEndpoint, http.MethodGet, p.path)
	}
	return p.endpoint
}

func (p *pipeline) entryTask(e *entry) task {
	return task{
		name:      e.Describe(),
		skippable: e.stage.skippable(),
		action: func(c *Context) error {
			c.update(e)
			switch e.stage {
			case StageBeforeMatched, StageEndpoint, StageAfterMatched:
				c.endpoint = p.endpoint
				c.setRouteRoles(p.endpoint.roles)
			default:
			}
			return e.handler(c)
		},
	}
}

// noEndpoint runs in place of the endpoint when nothing matched: static
// resources for GET and HEAD, then 405 or 404.
func (p *pipeline) noEndpoint(c *Context) error {
	c.stage = StageEndpoint
	method := c.Method()

	if p.inContext && p.router.resources != nil && (method == http.MethodGet || method == http.MethodHead) {
		handled, err := p.router.resources.Handle(c)
		if err != nil || handled {
			return err
		}
	}

	if p.inContext && p.router.cfg.Prefer405Over404 {
		if methods := p.snap.methodsFor(p.path); len(methods) > 0 {
			return MethodNotAllowed(methods)
		}
	}

	return NotFound(fmt.Sprintf("Endpoint %s %s not found", method, c.Path()))
}

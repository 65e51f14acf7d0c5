package relay

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"
)

type pipelineState int32

const (
	stateDraining pipelineState = iota
	stateAwaiting
	stateFinalizing
	stateWritten
)

func (s pipelineState) String() string {
	switch s {
	case stateDraining:
		return "draining"
	case stateAwaiting:
		return "awaiting"
	case stateFinalizing:
		return "finalizing"
	case stateWritten:
		return "written"
	default:
		return fmt.Sprintf("pipelineState(%d)", int32(s))
	}
}

type outcomeKind int

const (
	outcomeContinue outcomeKind = iota
	outcomeSuspend
	outcomeFault
)

// outcome is the result of running one task.
type outcome struct {
	kind     outcomeKind
	supplier func() *Future
	err      error
}

// task is one unit of queued work. Tasks with skippable set are bypassed
// once the request has failed or SkipRemainingHandlers was called.
type task struct {
	name      string
	skippable bool
	action    Handler
}

func (t task) Describe() string { return t.name }

// pipeline drives one HTTP request through the stage queue. Tasks run one at
// a time; the goroutine draining the queue owns the Context. When a task
// suspends on a future, ownership passes to whichever of completion,
// timeout, or client disconnect wins the state transition out of awaiting.
type pipeline struct {
	router    *Router
	snap      *snapshot
	w         http.ResponseWriter
	ctx       *Context
	path      string
	inContext bool

	queue    []task
	failed   bool
	future   *Future
	endpoint *entry
	resolved bool

	state    atomic.Int32
	written  atomic.Bool
	finished chan struct{}
	endSpan  func()
}

func newPipeline(r *Router, snap *snapshot, w http.ResponseWriter, req *http.Request, path string, inContext bool) *pipeline {
	p := &pipeline{
		router:    r,
		snap:      snap,
		w:         w,
		path:      path,
		inContext: inContext,
		finished:  make(chan struct{}),
	}

	if r.tracer != nil {
		ctx, end := r.tracer.StartSpan(req.Context(), req.Method+" "+req.URL.Path, map[string]string{
			"http.method": req.Method,
			"http.target": req.URL.RequestURI(),
		})
		req = req.WithContext(ctx)
		p.endSpan = end
	}

	p.ctx = newContext(r, w, req, path)
	r.metrics.begin()
	return p
}

// execute queues every stage, drains, and blocks until the response is
// written or abandoned.
func (p *pipeline) execute() {
	defer p.recoverCrash()

	for _, st := range p.router.stageOrder {
		if init, ok := stageInitializers[st]; ok {
			init(p)
		}
	}

	p.drain()
	if pipelineState(p.state.Load()) == stateAwaiting {
		p.await()
	}
}

func (p *pipeline) submit(t task) {
	p.queue = append(p.queue, t)
}

func (p *pipeline) prepend(t task) {
	p.queue = append([]task{t}, p.queue...)
}

// drain runs queued tasks until the queue empties or a task suspends.
func (p *pipeline) drain() {
	for len(p.queue) > 0 {
		t := p.queue[0]
		p.queue = p.queue[1:]

		if t.skippable && (p.failed || p.ctx.skipRemaining) {
			continue
		}

		switch o := p.run(t); o.kind {
		case outcomeFault:
			p.fail(t, o.err)
		case outcomeSuspend:
			f, err := p.obtain(o.supplier)
			if err != nil {
				p.fail(t, err)
				continue
			}
			p.future = f
			p.state.Store(int32(stateAwaiting))
			return
		case outcomeContinue:
		}
	}

	p.finalize()
}

func (p *pipeline) run(t task) (o outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			o = outcome{kind: outcomeFault, err: &PanicError{Value: rec, Stack: debug.Stack()}}
		}
	}()

	if err := t.action(p.ctx); err != nil {
		return outcome{kind: outcomeFault, err: err}
	}
	if s := p.ctx.takeFutureSupplier(); s != nil {
		return outcome{kind: outcomeSuspend, supplier: s}
	}
	return outcome{kind: outcomeContinue}
}

// obtain calls the future supplier.
func (p *pipeline) obtain(supplier func() *Future) (f *Future, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			f, err = nil, &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()

	if f = supplier(); f == nil {
		return nil, ErrNilFuture
	}
	return f, nil
}

// fail marks the request failed and queues the exception mapper ahead of
// everything else. A future registered by the failing task is discarded
// without calling its supplier.
func (p *pipeline) fail(source Describable, err error) {
	p.failed = true
	if p.ctx.takeFutureSupplier() != nil {
		p.ctx.logger.Debug("discarding future registered by failed handler",
			"handler", source.Describe(),
			"err", err,
		)
	}

	p.prepend(task{
		name: "exception mapper",
		action: func(c *Context) error {
			p.router.exceptions.handle(err, c)
			return nil
		},
	})
}

// resume continues draining after the awaited future settled. It runs on a
// fresh goroutine; the caller has already moved the state out of awaiting.
func (p *pipeline) resume(f *Future) {
	p.future = nil

	v, err := f.Result()
	if err != nil {
		p.fail(task{name: "future"}, &FutureError{Err: err})
	} else {
		p.prepend(task{
			name: "future result",
			action: func(c *Context) error {
				return c.applyFutureValue(v)
			},
		})
	}

	p.drain()
}

// finalize writes the response exactly once.
func (p *pipeline) finalize() {
	if !p.written.CompareAndSwap(false, true) {
		return
	}
	p.state.Store(int32(stateFinalizing))
	defer p.complete()

	c := p.ctx
	if c.aborted {
		c.logger.Debug("client aborted request; response abandoned",
			"method", c.Method(),
			"path", c.Path(),
		)
	} else if err := p.write(); err != nil {
		if isClientAbort(c.req.Context(), err) {
			c.logger.Debug("client went away while writing response", "err", err)
		} else {
			c.logger.Warn("write response", "err", err, "method", c.Method(), "path", c.Path())
		}
	}
	c.closeResult()

	elapsed := time.Since(c.start)
	p.logRequest(elapsed)
	p.router.metrics.observe(c, elapsed)
}

// complete releases everything held for the request. Only the goroutine that
// won the written flag calls it.
func (p *pipeline) complete() {
	p.router.metrics.end()
	if p.endSpan != nil {
		p.endSpan()
	}
	p.state.Store(int32(stateWritten))
	close(p.finished)
}

func (p *pipeline) logRequest(elapsed time.Duration) {
	if p.router.requestLogger == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			p.ctx.logger.Error("request logger panicked", "panic", rec)
		}
	}()
	p.router.requestLogger(p.ctx, elapsed)
}

// recoverCrash is the last line of defense for panics outside handler code.
func (p *pipeline) recoverCrash() {
	rec := recover()
	if rec == nil {
		return
	}

	req := p.ctx.req
	p.router.logger.Error("request pipeline crashed",
		"panic", rec,
		"stack", string(debug.Stack()),
		"method", req.Method,
		"path", req.URL.Path,
	)
	if p.written.CompareAndSwap(false, true) {
		http.Error(p.w, "Internal server error", http.StatusInternalServerError)
		p.complete()
	}
}

package relay

import (
	"io"
	"time"
)

// await blocks the serving goroutine while the pipeline is suspended on a
// future. Completion, Config.AsyncTimeout and client disconnect race; the
// first to move the state out of awaiting owns the rest of the request.
// The timeout is armed once and spans every suspension of the request.
func (p *pipeline) await() {
	var timeout <-chan time.Time
	if d := p.router.cfg.AsyncTimeout; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}
	disconnected := p.ctx.req.Context().Done()

	for pipelineState(p.state.Load()) == stateAwaiting {
		f := p.future

		select {
		case <-f.Done():
			if !p.state.CompareAndSwap(int32(stateAwaiting), int32(stateDraining)) {
				return
			}
			segment := make(chan struct{})
			go func() {
				defer close(segment)
				defer p.recoverCrash()
				p.resume(f)
			}()

			select {
			case <-segment:
			case <-timeout:
				p.timeoutWhileDraining()
				return
			}

		case <-timeout:
			if p.state.CompareAndSwap(int32(stateAwaiting), int32(stateFinalizing)) {
				f.Cancel()
				p.timeoutWhileAwaiting()
			}
			return

		case <-disconnected:
			if p.state.CompareAndSwap(int32(stateAwaiting), int32(stateFinalizing)) {
				f.Cancel()
				p.ctx.aborted = true
				p.finalize()
			}
			return
		}
	}
}

// timeoutWhileAwaiting renders the timeout through the error mapper. The
// serving goroutine owns the Context again at this point.
func (p *pipeline) timeoutWhileAwaiting() {
	c := p.ctx
	cfg := p.router.cfg

	c.logger.Warn("async request timed out",
		"method", c.Method(),
		"path", c.Path(),
		"timeout", cfg.AsyncTimeout,
	)
	p.router.metrics.timedOut(c)

	c.SetStatus(cfg.AsyncTimeoutStatus)
	c.stage = StageError
	p.router.errors.handle(c, p.router.exceptions)
	if c.takeFutureSupplier() != nil {
		c.logger.Debug("discarding future registered after timeout")
	}
	if !c.HasResult() {
		c.ResultString(cfg.AsyncTimeoutMessage)
	}

	p.finalize()
}

// timeoutWhileDraining fires when a resumed segment is still running at the
// deadline. That goroutine owns the Context, so the fallback response is
// written straight to the connection. If finalize already claimed the
// response, wait for it to finish instead.
func (p *pipeline) timeoutWhileDraining() {
	if !p.written.CompareAndSwap(false, true) {
		<-p.finished
		return
	}
	defer p.complete()

	cfg := p.router.cfg
	req := p.ctx.req
	p.router.logger.Warn("async request timed out while resuming",
		"method", req.Method,
		"path", req.URL.Path,
		"timeout", cfg.AsyncTimeout,
	)
	p.router.metrics.timedOut(nil)

	p.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	p.w.WriteHeader(cfg.AsyncTimeoutStatus)
	if _, err := io.WriteString(p.w, cfg.AsyncTimeoutMessage); err != nil {
		p.router.logger.Debug("write timeout response", "err", err)
	}
}

// Package relay is an embeddable HTTP and WebSocket request-lifecycle
// engine. Every request runs through a staged pipeline of handlers sharing
// one signature:
//
//	type Handler func(c *relay.Context) error
//
// Stages run in a fixed order: BEFORE, BEFORE-MATCHED, the endpoint,
// AFTER-MATCHED, ERROR and AFTER. Returning an error (or panicking) from a
// handler marks the request failed; the remaining BEFORE, BEFORE-MATCHED and
// endpoint handlers are skipped, the error is rendered by the exception
// mapper, and the later stages still run.
//
//	r := relay.New(relay.WithAsyncTimeout(5 * time.Second))
//	r.Before("*", relay.RequestID())
//	r.Get("/users/{id}", getUser, relay.WithRoles("reader"))
//	relay.Exception(r, func(err *NotFoundError, c *relay.Context) {
//	    c.SetStatus(http.StatusNotFound)
//	})
//
// A handler may suspend the pipeline on a Future; the request resumes when
// the future settles, or is answered with Config.AsyncTimeoutStatus when
// Config.AsyncTimeout elapses first:
//
//	r.Get("/report", func(c *relay.Context) error {
//	    return c.Future(func() *relay.Future {
//	        return relay.Async(c.Context(), buildReport)
//	    })
//	})
//
// Response status, headers and body are buffered on the Context and written
// once, at finalize, where ETags and gzip compression are applied.
//
// Middleware uses the standard func(http.Handler) http.Handler signature and
// wraps the whole router.
package relay

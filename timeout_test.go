package relay_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/relay"
)

func futureHandler(supplier func() *relay.Future) relay.Handler {
	return func(c *relay.Context) error {
		return c.Future(supplier)
	}
}

func TestAsync_completedFuture(t *testing.T) {
	t.Parallel()

	r := relay.New(relay.WithAsyncTimeout(0))
	r.Get("/async", futureHandler(func() *relay.Future { return relay.Completed("done") }))

	rec := serve(t, r, http.MethodGet, "/async", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "done", rec.Body.String())
}

func TestAsync_slowFutureWithoutTimeout(t *testing.T) {
	t.Parallel()

	r := relay.New(relay.WithAsyncTimeout(0))
	r.Get("/async", func(c *relay.Context) error {
		return c.Future(func() *relay.Future {
			return relay.Async(c.Context(), func(_ context.Context) (any, error) {
				time.Sleep(20 * time.Millisecond)
				return []byte("late but fine"), nil
			})
		})
	})

	rec := serve(t, r, http.MethodGet, "/async", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "late but fine", rec.Body.String())
}

func TestAsync_timeout(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cfg        func(*relay.Config)
		wantStatus int
		wantBody   string
	}{
		"defaults": {
			cfg:        func(*relay.Config) {},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "Request timed out",
		},
		"custom status and message": {
			cfg: func(c *relay.Config) {
				c.AsyncTimeoutStatus = http.StatusServiceUnavailable
				c.AsyncTimeoutMessage = "try later"
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "try later",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := relay.DefaultConfig()
			cfg.AsyncTimeout = time.Millisecond
			tc.cfg(&cfg)

			r := relay.New(relay.WithConfig(cfg))
			r.Get("/async", futureHandler(relay.NewFuture))

			rec := serve(t, r, http.MethodGet, "/async", nil)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantBody, rec.Body.String())
		})
	}
}

func TestAsync_timeoutRunsErrorMapper(t *testing.T) {
	t.Parallel()

	r := relay.New(relay.WithAsyncTimeout(time.Millisecond))
	r.Get("/async", futureHandler(relay.NewFuture))
	require.NoError(t, r.Error(http.StatusInternalServerError, text("custom timeout page")))

	rec := serve(t, r, http.MethodGet, "/async", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "custom timeout page", rec.Body.String())
}

func TestAsync_timeoutCancelsAsyncWork(t *testing.T) {
	t.Parallel()

	cancelled := make(chan struct{})
	r := relay.New(relay.WithAsyncTimeout(5 * time.Millisecond))
	r.Get("/async", func(c *relay.Context) error {
		return c.Future(func() *relay.Future {
			return relay.Async(c.Context(), func(ctx context.Context) (any, error) {
				<-ctx.Done()
				close(cancelled)
				return nil, ctx.Err()
			})
		})
	})

	rec := serve(t, r, http.MethodGet, "/async", nil)
	assert.Equal(t, "Request timed out", rec.Body.String())

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("async work was not cancelled")
	}
}

func TestAsync_timeoutWhileResuming(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	resumed := make(chan struct{})

	r := relay.New(relay.WithAsyncTimeout(20 * time.Millisecond))
	r.Get("/async", futureHandler(func() *relay.Future { return relay.Completed("done") }))
	r.After("*", func(_ *relay.Context) error {
		<-release
		return nil
	})
	r.After("*", func(c *relay.Context) error {
		c.SetStatus(http.StatusOK)
		c.ResultString("late result")
		close(resumed)
		return nil
	})

	rec := serve(t, r, http.MethodGet, "/async", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Request timed out", rec.Body.String())

	close(release)
	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatal("resumed segment never finished")
	}

	// The segment's own finalize loses the written flag and must not touch
	// the response.
	assert.Never(t, func() bool {
		return rec.Body.String() != "Request timed out"
	}, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAsync_futureFailure(t *testing.T) {
	t.Parallel()

	r := relay.New()
	r.Get("/async", futureHandler(func() *relay.Future {
		f := relay.NewFuture()
		f.Fail(relay.BadRequest("bad input"))
		return f
	}))

	rec := serve(t, r, http.MethodGet, "/async", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad input", rec.Body.String())
}

func TestAsync_futureFailureReachesExceptionHandler(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	r := relay.New()
	relay.Exception(r, func(err *relay.FutureError, c *relay.Context) {
		c.ResultString("should not see the wrapper")
	})
	r.Get("/async", futureHandler(func() *relay.Future {
		f := relay.NewFuture()
		f.Fail(&teapotError{cause: errBoom})
		return f
	}))
	relay.Exception(r, func(err *teapotError, c *relay.Context) {
		c.SetStatus(http.StatusTeapot)
		c.ResultString(err.Error())
	})

	rec := serve(t, r, http.MethodGet, "/async", nil)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "teapot: boom", rec.Body.String())
}

func TestAsync_futureValueMapping(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		value           any
		wantBody        string
		wantContentType string
	}{
		"string": {value: "plain", wantBody: "plain", wantContentType: "text/plain"},
		"bytes":  {value: []byte("raw"), wantBody: "raw", wantContentType: "text/plain"},
		"struct": {
			value:           struct{ Name string }{Name: "relay"},
			wantBody:        "{\"Name\":\"relay\"}\n",
			wantContentType: "application/json",
		},
		"nil keeps result": {value: nil, wantBody: "before", wantContentType: "text/plain"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := relay.New()
			r.Get("/async", func(c *relay.Context) error {
				c.ResultString("before")
				return c.Future(func() *relay.Future { return relay.Completed(tc.value) })
			})

			rec := serve(t, r, http.MethodGet, "/async", nil)

			assert.Equal(t, tc.wantBody, rec.Body.String())
			assert.Equal(t, tc.wantContentType, rec.Header().Get("Content-Type"))
		})
	}
}

func TestAsync_afterStagesRunAfterResume(t *testing.T) {
	t.Parallel()

	r := relay.New()
	r.Get("/async", futureHandler(func() *relay.Future { return relay.Completed("done") }))
	r.After("*", func(c *relay.Context) error {
		c.SetHeader("X-Seen", c.ResultText())
		return nil
	})

	rec := serve(t, r, http.MethodGet, "/async", nil)

	assert.Equal(t, "done", rec.Header().Get("X-Seen"))
	assert.Equal(t, "done", rec.Body.String())
}

func TestAsync_suspendTwice(t *testing.T) {
	t.Parallel()

	r := relay.New(relay.WithAsyncTimeout(time.Second))
	r.Get("/async", futureHandler(func() *relay.Future { return relay.Completed("first") }))
	r.After("*", func(c *relay.Context) error {
		prev := c.ResultText()
		return c.Future(func() *relay.Future { return relay.Completed(prev + "+second") })
	})

	rec := serve(t, r, http.MethodGet, "/async", nil)

	assert.Equal(t, "first+second", rec.Body.String())
}

func TestAsync_discardedFuture(t *testing.T) {
	t.Parallel()

	var supplied atomic.Int32
	r := relay.New()
	r.Get("/async", func(c *relay.Context) error {
		require.NoError(t, c.Future(func() *relay.Future {
			supplied.Add(1)
			return relay.Completed("never")
		}))
		return relay.Forbidden("denied")
	})

	rec := serve(t, r, http.MethodGet, "/async", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "denied", rec.Body.String())
	assert.Zero(t, supplied.Load())
}

func TestAsync_futureAlreadySet(t *testing.T) {
	t.Parallel()

	var second error
	r := relay.New()
	r.Get("/async", func(c *relay.Context) error {
		require.NoError(t, c.Future(func() *relay.Future { return relay.Completed("one") }))
		second = c.Future(func() *relay.Future { return relay.Completed("two") })
		return nil
	})

	rec := serve(t, r, http.MethodGet, "/async", nil)

	require.ErrorIs(t, second, relay.ErrFutureAlreadySet)
	assert.Equal(t, "one", rec.Body.String())
}

func TestAsync_nilFuture(t *testing.T) {
	t.Parallel()

	r := relay.New()
	r.Get("/async", futureHandler(func() *relay.Future { return nil }))
	relay.Exception(r, func(err error, c *relay.Context) {
		if errors.Is(err, relay.ErrNilFuture) {
			c.SetStatus(http.StatusBadGateway)
		}
	})

	rec := serve(t, r, http.MethodGet, "/async", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAsync_clientDisconnect(t *testing.T) {
	t.Parallel()

	r := relay.New(relay.WithAsyncTimeout(0))
	r.Get("/async", futureHandler(relay.NewFuture))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/async", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(rec, req)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ServeHTTP did not return after client disconnect")
	}
	assert.Empty(t, rec.Body.String())
	assert.False(t, rec.Flushed)
}

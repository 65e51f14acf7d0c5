package relay_test

import (
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/relay"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) handler(name string) relay.Handler {
	return func(_ *relay.Context) error {
		r.add(name)
		return nil
	}
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestLifecycle_stageOrder(t *testing.T) {
	t.Parallel()

	var rec recorder
	r := relay.New()
	r.After("*", rec.handler("after"))
	r.AfterMatched("*", rec.handler("after-matched"))
	r.Get("/x", rec.handler("endpoint"))
	r.BeforeMatched("*", rec.handler("before-matched"))
	r.Before("*", rec.handler("before-1"))
	r.Before("/x", rec.handler("before-2"))
	require.NoError(t, r.Error(http.StatusOK, rec.handler("error")))

	res := serve(t, r, http.MethodGet, "/x", nil)

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, []string{
		"before-1", "before-2", "before-matched", "endpoint", "after-matched", "error", "after",
	}, rec.list())
}

func TestLifecycle_unmatchedSkipsMatchedStages(t *testing.T) {
	t.Parallel()

	var rec recorder
	r := relay.New()
	r.Before("*", rec.handler("before"))
	r.BeforeMatched("*", rec.handler("before-matched"))
	r.AfterMatched("*", rec.handler("after-matched"))
	r.After("*", rec.handler("after"))

	res := serve(t, r, http.MethodGet, "/nothing", nil)

	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, []string{"before", "after"}, rec.list())
}

func TestLifecycle_beforeFailureSkipsEndpoint(t *testing.T) {
	t.Parallel()

	var rec recorder
	r := relay.New()
	r.Before("*", func(_ *relay.Context) error {
		rec.add("before")
		return relay.Unauthorized("who are you")
	})
	r.Before("*", rec.handler("before-2"))
	r.BeforeMatched("*", rec.handler("before-matched"))
	r.Get("/secret", rec.handler("endpoint"))
	r.AfterMatched("*", rec.handler("after-matched"))
	r.After("*", rec.handler("after"))

	res := serve(t, r, http.MethodGet, "/secret", nil)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "who are you", res.Body.String())
	assert.Equal(t, []string{"before", "after-matched", "after"}, rec.list())
}

func TestLifecycle_endpointFailureRunsAfterStages(t *testing.T) {
	t.Parallel()

	r := relay.New()
	r.Get("/fail", func(_ *relay.Context) error {
		return relay.BadRequest("nope")
	})
	r.AfterMatched("/fail", func(c *relay.Context) error {
		c.SetHeader("X-After-Matched", "ran")
		return nil
	})
	r.After("*", func(c *relay.Context) error {
		c.SetHeader("X-After", "ran")
		return nil
	})

	res := serve(t, r, http.MethodGet, "/fail", nil)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "ran", res.Header().Get("X-After-Matched"))
	assert.Equal(t, "ran", res.Header().Get("X-After"))
}

func TestLifecycle_afterFailureStillWrites(t *testing.T) {
	t.Parallel()

	r := relay.New()
	r.Get("/x", text("ok"))
	r.After("*", func(_ *relay.Context) error {
		return relay.Forbidden("late")
	})

	res := serve(t, r, http.MethodGet, "/x", nil)

	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "late", res.Body.String())
}

func TestLifecycle_skipRemainingHandlers(t *testing.T) {
	t.Parallel()

	var rec recorder
	r := relay.New()
	r.Before("*", func(c *relay.Context) error {
		rec.add("before")
		c.SkipRemainingHandlers()
		c.ResultString("short-circuit")
		return nil
	})
	r.Before("*", rec.handler("before-2"))
	r.Get("/x", rec.handler("endpoint"))
	r.AfterMatched("*", rec.handler("after-matched"))
	r.After("*", rec.handler("after"))

	res := serve(t, r, http.MethodGet, "/x", nil)

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "short-circuit", res.Body.String())
	assert.Equal(t, []string{"before", "after-matched", "after"}, rec.list())
}

func TestLifecycle_pathParamsPerHandler(t *testing.T) {
	t.Parallel()

	var before, endpoint string
	r := relay.New()
	r.Before("/users/{id}", func(c *relay.Context) error {
		before = c.PathParam("id")
		return nil
	})
	r.Get("/users/{uid}", func(c *relay.Context) error {
		endpoint = c.PathParam("uid")
		c.ResultString(c.EndpointPath())
		return nil
	})

	res := serve(t, r, http.MethodGet, "/users/a%20b", nil)

	assert.Equal(t, "a b", before)
	assert.Equal(t, "a b", endpoint)
	assert.Equal(t, "/users/{uid}", res.Body.String())
}

func TestLifecycle_routeRoles(t *testing.T) {
	t.Parallel()

	var beforeRoles, matchedRoles []relay.Role
	r := relay.New()
	r.Before("*", func(c *relay.Context) error {
		beforeRoles = c.RouteRoles()
		return nil
	})
	r.BeforeMatched("*", func(c *relay.Context) error {
		matchedRoles = c.RouteRoles()
		return nil
	})
	r.Get("/admin", text("ok"), relay.WithRoles("admin", "ops"))

	serve(t, r, http.MethodGet, "/admin", nil)

	assert.Empty(t, beforeRoles)
	assert.Equal(t, []relay.Role{"admin", "ops"}, matchedRoles)
}

func TestLifecycle_stageOrderOption(t *testing.T) {
	t.Parallel()

	var rec recorder
	r := relay.New(relay.WithStageOrder(relay.StageEndpoint, relay.StageBefore))
	r.Before("*", rec.handler("before"))
	r.Get("/x", rec.handler("endpoint"))
	r.After("*", rec.handler("after"))

	serve(t, r, http.MethodGet, "/x", nil)

	assert.Equal(t, []string{"endpoint", "before"}, rec.list())
}

func TestLifecycle_stageVisibleToHandlers(t *testing.T) {
	t.Parallel()

	var stages []relay.Stage
	capture := func(c *relay.Context) error {
		stages = append(stages, c.Stage())
		return nil
	}

	r := relay.New()
	r.Before("*", capture)
	r.Get("/x", capture)
	r.After("*", capture)
	require.NoError(t, r.Error(http.StatusOK, capture))

	serve(t, r, http.MethodGet, "/x", nil)

	assert.Equal(t, []relay.Stage{relay.StageBefore, relay.StageEndpoint, relay.StageError, relay.StageAfter}, stages)
}

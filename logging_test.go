package relay_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/relay"
)

// syncBuffer guards a bytes.Buffer shared with a logger.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSlogRequestLogger(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		target    string
		withID    bool
		wantAttrs map[string]any
		absent    []string
	}{
		"matched endpoint": {
			target: "/users/7",
			withID: true,
			wantAttrs: map[string]any{
				"msg":        "request",
				"method":     "GET",
				"path":       "/users/7",
				"status":     float64(http.StatusCreated),
				"endpoint":   "/users/{id}",
				"request_id": "req-1",
				"remote":     "192.0.2.1:1234",
			},
		},
		"unmatched path": {
			target: "/nowhere",
			wantAttrs: map[string]any{
				"path":   "/nowhere",
				"status": float64(http.StatusNotFound),
			},
			absent: []string{"endpoint", "request_id"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf syncBuffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			r := relay.New(relay.WithRequestLogger(relay.SlogRequestLogger(logger)))
			if tc.withID {
				r.Before("*", relay.RequestID(relay.RequestIDConfig{Generator: func() string { return "req-1" }}))
			}
			r.Get("/users/{id}", func(c *relay.Context) error {
				c.SetStatus(http.StatusCreated)
				return nil
			})

			serve(t, r, http.MethodGet, tc.target, nil)

			var entry map[string]any
			require.NoError(t, json.Unmarshal([]byte(buf.String()), &entry))
			for k, v := range tc.wantAttrs {
				assert.Equal(t, v, entry[k], "attr %s", k)
			}
			for _, k := range tc.absent {
				assert.NotContains(t, entry, k)
			}
			assert.Contains(t, entry, "latency")
		})
	}
}

func TestRequestLogger_calledOnce(t *testing.T) {
	t.Parallel()

	var (
		calls   int
		elapsed time.Duration
	)
	r := relay.New(relay.WithRequestLogger(func(_ *relay.Context, d time.Duration) {
		calls++
		elapsed = d
	}))
	r.Get("/slow", func(*relay.Context) error {
		time.Sleep(2 * time.Millisecond)
		return nil
	})

	serve(t, r, http.MethodGet, "/slow", nil)

	assert.Equal(t, 1, calls)
	assert.GreaterOrEqual(t, elapsed, 2*time.Millisecond)
}

func TestRequestLogger_panicDoesNotBreakResponse(t *testing.T) {
	t.Parallel()

	r := relay.New(relay.WithRequestLogger(func(*relay.Context, time.Duration) {
		panic("logger broke")
	}))
	r.Get("/", text("fine"))

	rec := serve(t, r, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fine", rec.Body.String())
}

func TestWithLogger(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := relay.New(relay.WithLogger(logger))
	r.Get("/fail", failing(&teapotError{cause: assert.AnError}))

	serve(t, r, http.MethodGet, "/fail", nil)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "uncaught error in request handler", entry["msg"])
	assert.Equal(t, "relay", entry["component"])
	assert.Equal(t, "/fail", entry["path"])
}

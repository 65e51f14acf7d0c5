package relay

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bjaus/relay/pathmatch"
)

// Router is the central type that holds routes, mappers, and configuration.
// It implements http.Handler. Register every route before the first request:
// serving freezes the route table.
type Router struct {
	Routes

	cfg        Config
	logger     *slog.Logger
	registry   registry
	snap       atomic.Pointer[snapshot]
	startOnce  sync.Once
	handler    http.Handler
	middleware []Middleware
	stageOrder []Stage
	gzipPool   *sync.Pool

	exceptions *exceptionMapper
	errors     *errorMapper

	json          JSONMapper
	validator     Validator
	resources     ResourceHandler
	requestLogger RequestLogger
	metrics       *Metrics
	tracer        SpanStarter
	checkOrigin   func(r *http.Request) bool
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithConfig replaces the whole configuration. New panics if the result
// does not pass Config.Validate.
func WithConfig(cfg Config) RouterOption {
	return func(r *Router) {
		r.cfg = cfg
	}
}

// WithLogger sets the logger used for framework diagnostics.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

// WithAsyncTimeout sets Config.AsyncTimeout. Zero disables the timeout.
func WithAsyncTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		r.cfg.AsyncTimeout = d
	}
}

// WithPrefer405Over404 sets Config.Prefer405Over404.
func WithPrefer405Over404(on bool) RouterOption {
	return func(r *Router) {
		r.cfg.Prefer405Over404 = on
	}
}

// WithIgnoreTrailingSlashes sets Config.IgnoreTrailingSlashes.
func WithIgnoreTrailingSlashes(on bool) RouterOption {
	return func(r *Router) {
		r.cfg.IgnoreTrailingSlashes = on
	}
}

// WithCaseInsensitiveRoutes sets Config.CaseInsensitiveRoutes.
func WithCaseInsensitiveRoutes(on bool) RouterOption {
	return func(r *Router) {
		r.cfg.CaseInsensitiveRoutes = on
	}
}

// WithMaxRequestSize sets Config.MaxRequestSize.
func WithMaxRequestSize(n int64) RouterOption {
	return func(r *Router) {
		r.cfg.MaxRequestSize = n
	}
}

// WithContextPath mounts every route under prefix.
func WithContextPath(prefix string) RouterOption {
	return func(r *Router) {
		r.cfg.ContextPath = prefix
	}
}

// WithStageOrder overrides the order in which stages are queued.
// Stages left out never run.
func WithStageOrder(stages ...Stage) RouterOption {
	return func(r *Router) {
		r.stageOrder = stages
	}
}

// WithJSONMapper replaces the JSON codec used by Context.JSON and BodyAs.
func WithJSONMapper(m JSONMapper) RouterOption {
	return func(r *Router) {
		r.json = m
	}
}

// WithValidator sets a validator run by Context.BodyAs.
func WithValidator(v Validator) RouterOption {
	return func(r *Router) {
		r.validator = v
	}
}

// WithResourceHandler sets the fallback consulted for GET and HEAD requests
// that match no endpoint.
func WithResourceHandler(h ResourceHandler) RouterOption {
	return func(r *Router) {
		r.resources = h
	}
}

// WithRequestLogger sets the hook called once per finalized request.
func WithRequestLogger(l RequestLogger) RouterOption {
	return func(r *Router) {
		r.requestLogger = l
	}
}

// WithMetrics records request metrics.
func WithMetrics(m *Metrics) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

// SpanStarter is a tracing hook interface for creating spans per request.
// OTelSpanStarter adapts an OpenTelemetry tracer.
type SpanStarter interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func())
}

// WithTracer sets a tracing hook for the router.
func WithTracer(s SpanStarter) RouterOption {
	return func(r *Router) {
		r.tracer = s
	}
}

// WithWebSocketOriginCheck sets the origin check used during WebSocket
// upgrades. The default rejects cross-origin requests.
func WithWebSocketOriginCheck(fn func(r *http.Request) bool) RouterOption {
	return func(r *Router) {
		r.checkOrigin = fn
	}
}

// New creates a new Router with the given options. It panics with an error
// wrapping ErrInvalidConfig when the configuration does not validate.
func New(opts ...RouterOption) *Router {
	r := &Router{
		cfg:        DefaultConfig(),
		logger:     slog.Default(),
		stageOrder: DefaultStageOrder,
		json:       jsonCodec{},
	}
	r.Routes = Routes{router: r}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.cfg.Validate(); err != nil {
		panic(err)
	}
	r.logger = r.logger.With(slog.String("component", "relay"))
	r.exceptions = newExceptionMapper()
	r.errors = &errorMapper{}
	return r
}

// Config returns the router configuration.
func (r *Router) Config() Config { return r.cfg }

// Use adds net/http middleware around the whole router. Middleware is
// applied in the order added.
func (r *Router) Use(mw ...Middleware) {
	r.middleware = append(r.middleware, mw...)
}

// RouteList returns every registered handler in registration order.
func (r *Router) RouteList() []RouteInfo {
	entries := r.registry.list()
	out := make([]RouteInfo, len(entries))
	for i, e := range entries {
		out[i] = e.info()
	}
	return out
}

func (r *Router) matchOptions() pathmatch.Options {
	return pathmatch.Options{
		IgnoreTrailingSlashes: r.cfg.IgnoreTrailingSlashes,
		CaseInsensitive:       r.cfg.CaseInsensitiveRoutes,
	}
}

// start freezes the route table. It runs once, on the first request.
func (r *Router) start() {
	r.startOnce.Do(func() {
		r.errors.freeze()
		r.snap.Store(r.registry.freeze(r.matchOptions()))

		level := r.cfg.Compression.Level
		r.gzipPool = &sync.Pool{
			New: func() any {
				gz, _ := gzip.NewWriterLevel(io.Discard, level) //nolint:errcheck // New rejects out-of-range levels
				return gz
			},
		}

		r.handler = Recovery(r.logger)(chain(http.HandlerFunc(r.serve), r.middleware))
	})
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.start()
	r.handler.ServeHTTP(w, req)
}

func (r *Router) serve(w http.ResponseWriter, req *http.Request) {
	snap := r.snap.Load()
	path, inContext := r.relativePath(req)

	if inContext && isWebSocketUpgrade(req) && snap.hasEntry(StageWSEndpoint, "", path) {
		r.serveWS(w, req, snap, path)
		return
	}

	newPipeline(r, snap, w, req, path, inContext).execute()
}

// relativePath strips the context path from the raw request path.
func (r *Router) relativePath(req *http.Request) (string, bool) {
	raw := req.URL.EscapedPath()
	cp := strings.TrimRight(r.cfg.ContextPath, "/")
	if cp == "" {
		return raw, true
	}
	if raw == cp {
		return "/", true
	}
	if rest, ok := strings.CutPrefix(raw, cp+"/"); ok {
		return "/" + rest, true
	}
	return raw, false
}

// ListenAndServe starts an HTTP server on addr (Config.Server.Addr when
// empty). It blocks until ctx is cancelled, then shuts down gracefully.
func (r *Router) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = r.cfg.Server.Addr
	}
	r.start()

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: r.cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       r.cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

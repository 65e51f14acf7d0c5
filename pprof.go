package relay

import (
	"net/http"
	"net/http/pprof"
)

// Pprof registers pprof profiling endpoints under the given prefix.
// Default prefix is "/debug/pprof".
func Pprof(g *Routes, prefix string) {
	if prefix == "" {
		prefix = "/debug/pprof"
	}

	g.Get(prefix, FromHTTP(http.HandlerFunc(pprof.Index)))
	g.Get(prefix+"/cmdline", FromHTTP(http.HandlerFunc(pprof.Cmdline)))
	g.Get(prefix+"/profile", FromHTTP(http.HandlerFunc(pprof.Profile)))
	g.Get(prefix+"/symbol", FromHTTP(http.HandlerFunc(pprof.Symbol)))
	g.Get(prefix+"/trace", FromHTTP(http.HandlerFunc(pprof.Trace)))
	for _, name := range []string{"goroutine", "heap", "allocs", "block", "mutex", "threadcreate"} {
		g.Get(prefix+"/"+name, FromHTTP(pprof.Handler(name)))
	}
}

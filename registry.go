package relay

import (
	"sync"

	"github.com/bjaus/relay/pathmatch"
)

// registry collects entries during startup. Once the router starts serving,
// freeze produces an immutable snapshot that request goroutines read without
// locking.
type registry struct {
	mu      sync.Mutex
	entries []*entry
	frozen  bool
}

func (reg *registry) add(e *entry) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.frozen {
		return ErrRouterStarted
	}

	if !e.stage.repeatable() && !e.repeatable {
		for _, other := range reg.entries {
			if other.stage == e.stage && other.method == e.method && other.pattern.String() == e.pattern.String() {
				return &RouteConflictError{Stage: e.stage, Method: e.method, Pattern: e.pattern.String()}
			}
		}
	}

	reg.entries = append(reg.entries, e)
	return nil
}

func (reg *registry) freeze(opts pathmatch.Options) *snapshot {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.frozen = true
	s := &snapshot{opts: opts, byStage: make(map[Stage][]*entry)}
	for _, e := range reg.entries {
		s.byStage[e.stage] = append(s.byStage[e.stage], e)
	}
	return s
}

func (reg *registry) list() []*entry {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*entry, len(reg.entries))
	copy(out, reg.entries)
	return out
}

// snapshot is the read-only view used while serving.
type snapshot struct {
	opts    pathmatch.Options
	byStage map[Stage][]*entry
}

// findEntries returns every entry of the stage matching method and path, in
// registration order. An empty method matches entries of any method.
func (s *snapshot) findEntries(stage Stage, method, path string) []*entry {
	var out []*entry
	for _, e := range s.byStage[stage] {
		if method != "" && e.method != "" && e.method != method {
			continue
		}
		if e.matches(path, s.opts) {
			out = append(out, e)
		}
	}
	return out
}

// findEndpoint returns the first endpoint for method and path.
func (s *snapshot) findEndpoint(stage Stage, method, path string) *entry {
	for _, e := range s.byStage[stage] {
		if e.method == method && e.matches(path, s.opts) {
			return e
		}
	}
	return nil
}

func (s *snapshot) hasEntry(stage Stage, method, path string) bool {
	for _, e := range s.byStage[stage] {
		if method != "" && e.method != "" && e.method != method {
			continue
		}
		if e.matches(path, s.opts) {
			return true
		}
	}
	return false
}

// methodsFor lists the distinct endpoint methods that match path.
func (s *snapshot) methodsFor(path string) []string {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	for _, e := range s.byStage[StageEndpoint] {
		if seen[e.method] || !e.matches(path, s.opts) {
			continue
		}
		seen[e.method] = true
		out = append(out, e.method)
	}
	return out
}

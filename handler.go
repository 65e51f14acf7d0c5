package relay

import "fmt"

// Handler is the signature shared by every lifecycle hook. Returning a
// non-nil error (or panicking) marks the request as failed: remaining
// BEFORE, BEFORE-MATCHED and endpoint handlers are skipped and the error is
// passed to the exception mapper.
type Handler func(c *Context) error

// Role is an opaque permission marker attached to routes with WithRoles.
type Role string

// Describable is implemented by anything that can name itself in logs.
type Describable interface {
	Describe() string
}

// Stage is one phase of the request lifecycle.
type Stage int

// Lifecycle stages in their default execution order. The WebSocket stages
// never take part in the HTTP pipeline.
const (
	StageBefore Stage = iota
	StageBeforeMatched
	StageEndpoint
	StageAfterMatched
	StageError
	StageAfter

	StageWSBefore
	StageWSEndpoint
	StageWSAfter
)

// DefaultStageOrder is the order in which stage initializers run.
var DefaultStageOrder = []Stage{
	StageBefore,
	StageBeforeMatched,
	StageEndpoint,
	StageAfterMatched,
	StageError,
	StageAfter,
}

func (s Stage) String() string {
	switch s {
	case StageBefore:
		return "BEFORE"
	case StageBeforeMatched:
		return "BEFORE_MATCHED"
	case StageEndpoint:
		return "ENDPOINT"
	case StageAfterMatched:
		return "AFTER_MATCHED"
	case StageError:
		return "ERROR"
	case StageAfter:
		return "AFTER"
	case StageWSBefore:
		return "WS_BEFORE"
	case StageWSEndpoint:
		return "WS"
	case StageWSAfter:
		return "WS_AFTER"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// repeatable reports whether many handlers may share one pattern in this
// stage without being flagged as a conflict.
func (s Stage) repeatable() bool {
	return s != StageEndpoint && s != StageWSEndpoint
}

// skippable reports whether tasks of this stage are bypassed once the
// request has failed.
func (s Stage) skippable() bool {
	switch s {
	case StageBefore, StageBeforeMatched, StageEndpoint:
		return true
	default:
		return false
	}
}

func (s Stage) websocket() bool {
	return s >= StageWSBefore
}

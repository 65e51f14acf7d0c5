package relay

import (
	"bytes"
	"errors"
	"net/http"
	"slices"
	"strings"
)

// renderHTTPError writes err as the response. Clients that accept JSON get
// an RFC 9457 problem details body; everyone else gets the message followed
// by one "key: value" line per detail.
func renderHTTPError(c *Context, err error) {
	status := ErrorStatus(err)
	c.SetStatus(status)

	problem := toProblem(err, status)
	if acceptsJSON(c.Header("Accept")) {
		var buf bytes.Buffer
		if encErr := c.router.json.Encode(&buf, problem); encErr == nil {
			c.ContentType("application/problem+json")
			c.Result(&buf)
			return
		}
	}

	var b strings.Builder
	b.WriteString(problem.Error())
	keys := make([]string, 0, len(problem.Details))
	for k := range problem.Details {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(problem.Details[k])
	}
	c.ContentType("text/plain; charset=utf-8")
	c.ResultString(b.String())
}

func toProblem(err error, status int) *ProblemDetail {
	// If the error is already a ProblemDetail, use it directly.
	var pd *ProblemDetail
	if errors.As(err, &pd) {
		return pd
	}

	problem := &ProblemDetail{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: err.Error(),
	}
	var he *HTTPError
	if errors.As(err, &he) {
		problem.Detail = he.Message
		problem.Details = he.Details
	}
	return problem
}

func acceptsJSON(accept string) bool {
	return strings.Contains(strings.ToLower(accept), "json")
}

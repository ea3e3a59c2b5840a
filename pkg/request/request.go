// Package request defines the request and response values that flow through
// the resilience layer. Both are plain data: the layer never interprets a
// response beyond passing it back to the caller.
package request

import (
	"net/http"
	"strings"
	"time"
)

// Method is an HTTP method.
type Method string

const (
	MethodGet     Method = http.MethodGet
	MethodPost    Method = http.MethodPost
	MethodPut     Method = http.MethodPut
	MethodPatch   Method = http.MethodPatch
	MethodDelete  Method = http.MethodDelete
	MethodHead    Method = http.MethodHead
	MethodOptions Method = http.MethodOptions
)

// ParseMethod normalizes s and reports whether it is a known method.
func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete, MethodHead, MethodOptions:
		return m, true
	default:
		return "", false
	}
}

func (m Method) String() string { return string(m) }

// Request describes one call against the underlying transport.
type Request struct {
	Method Method
	URL    string

	// Body is sent verbatim. Nil means no body.
	Body []byte

	Headers map[string]string
	Query   map[string]string

	// SkipRetry marks the request as ineligible for retries.
	SkipRetry bool

	// MaxRetries overrides the retry bound of the active policy when set.
	MaxRetries *int

	// Priority is carried along with the request but the queue drains in
	// enqueue order regardless of it.
	Priority int
}

// New returns a request for method and url.
func New(method Method, url string) *Request {
	return &Request{Method: method, URL: url}
}

// WithBody sets the body and returns r.
func (r *Request) WithBody(body []byte) *Request {
	r.Body = body
	return r
}

// WithHeader sets a header and returns r.
func (r *Request) WithHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

// WithQuery sets a query parameter and returns r.
func (r *Request) WithQuery(key, value string) *Request {
	if r.Query == nil {
		r.Query = make(map[string]string)
	}
	r.Query[key] = value
	return r
}

// WithMaxRetries sets the per-request retry bound and returns r.
func (r *Request) WithMaxRetries(n int) *Request {
	r.MaxRetries = &n
	return r
}

// Clone returns a deep copy of r.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	c.Headers = cloneMap(r.Headers)
	c.Query = cloneMap(r.Query)
	if r.MaxRetries != nil {
		n := *r.MaxRetries
		c.MaxRetries = &n
	}
	return &c
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Response is what the transport hands back for a successful call.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte

	// Metadata carries transport specific details (protocol, duration, ...).
	Metadata map[string]string

	ReceivedAt time.Time
}

// Clone returns a deep copy of r.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	if r.Headers != nil {
		c.Headers = r.Headers.Clone()
	}
	c.Metadata = cloneMap(r.Metadata)
	return &c
}

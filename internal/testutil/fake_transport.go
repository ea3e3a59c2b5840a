package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/resilient-net/pkg/request"
)

// TransportFunc answers one request for FakeTransport.
type TransportFunc func(ctx context.Context, req *request.Request) (*request.Response, error)

// FakeTransport is an in-process transport that records calls and answers
// them through per-URL functions.
type FakeTransport struct {
	mu       sync.Mutex
	routes   map[string]TransportFunc
	fallback TransportFunc
	calls    []*request.Request
	callTime []time.Time
}

// NewFakeTransport returns a transport that answers 200 with an empty body
// unless a route says otherwise.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		routes: make(map[string]TransportFunc),
		fallback: func(ctx context.Context, req *request.Request) (*request.Response, error) {
			return &request.Response{StatusCode: 200, ReceivedAt: time.Now()}, nil
		},
	}
}

// Route sets the function answering requests to url.
func (f *FakeTransport) Route(url string, fn TransportFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[url] = fn
}

// Fallback sets the function answering unrouted requests.
func (f *FakeTransport) Fallback(fn TransportFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = fn
}

// Do implements the orchestrator transport.
func (f *FakeTransport) Do(ctx context.Context, req *request.Request) (*request.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Clone())
	f.callTime = append(f.callTime, time.Now())
	fn, ok := f.routes[req.URL]
	if !ok {
		fn = f.fallback
	}
	f.mu.Unlock()

	return fn(ctx, req)
}

// CallCount returns the number of requests seen.
func (f *FakeTransport) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Calls returns copies of the requests seen, in call order.
func (f *FakeTransport) Calls() []*request.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*request.Request(nil), f.calls...)
}

// CallTimes returns when each call was made.
func (f *FakeTransport) CallTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.callTime...)
}

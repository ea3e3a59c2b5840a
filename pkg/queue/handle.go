package queue

import (
	"context"
	"sync"

	"github.com/Sternrassler/resilient-net/pkg/request"
)

// Handle is a single-assignment result slot.
//
// It is written at most once, by whoever completes the request, and read by
// the caller that is waiting for it. Readers that give up waiting do not
// prevent the write.
type Handle struct {
	id   string
	once sync.Once
	done chan struct{}
	resp *request.Response
	err  error
}

// NewHandle returns an unresolved handle.
func NewHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Resolved returns a handle that already holds resp and err.
func Resolved(resp *request.Response, err error) *Handle {
	h := NewHandle()
	h.Resolve(resp, err)
	return h
}

// ID returns the ID of the queued item the handle belongs to, or "" for a
// handle that was never queued.
func (h *Handle) ID() string {
	return h.id
}

// Resolve stores the outcome. It reports false if the handle was already
// resolved, in which case the call has no effect.
func (h *Handle) Resolve(resp *request.Response, err error) bool {
	resolved := false
	h.once.Do(func() {
		h.resp = resp
		h.err = err
		close(h.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the handle is resolved.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// IsResolved reports whether Resolve has been called.
func (h *Handle) IsResolved() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Result blocks until the handle is resolved and returns the outcome.
func (h *Handle) Result() (*request.Response, error) {
	<-h.done
	return h.resp, h.err
}

// Wait is Result bounded by ctx. Giving up leaves the handle untouched.
func (h *Handle) Wait(ctx context.Context) (*request.Response, error) {
	select {
	case <-h.done:
		return h.resp, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Package queue holds requests that were submitted while offline, and the
// pluggable persistence backends that keep a durable copy of them.
package queue

import (
	"time"

	"github.com/Sternrassler/resilient-net/pkg/request"
	"github.com/google/uuid"
)

// Item is a request waiting in the offline queue.
type Item struct {
	ID         string
	Request    *request.Request
	EnqueuedAt time.Time

	// Attempts counts how many times the item was dequeued for a drain.
	Attempts int

	// Handle is resolved with the outcome of the drain attempt.
	Handle *Handle
}

// NewItem wraps req with a fresh ID and an unresolved handle.
func NewItem(req *request.Request, now time.Time) *Item {
	id := uuid.NewString()
	h := NewHandle()
	h.id = id
	return &Item{
		ID:         id,
		Request:    req,
		EnqueuedAt: now,
		Handle:     h,
	}
}

// Requests extracts the request values of items, in order.
func Requests(items []*Item) []request.Request {
	out := make([]request.Request, 0, len(items))
	for _, it := range items {
		out = append(out, *it.Request.Clone())
	}
	return out
}

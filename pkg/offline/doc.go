// Package offline is the entry point of the resilience layer.
//
// An Orchestrator decides the fate of every request:
//
//   - served from the response cache when a live entry exists
//   - queued when offline and the method is not GET
//   - otherwise sent to the transport, retried per policy, and cached
//     when it is a successful GET
//
// Queued requests are replayed in FIFO order by a single drain goroutine once
// SetOnline(true) is called. Each queued caller holds a queue.Handle that is
// resolved with the outcome of its own replay; a failing item never blocks
// the items behind it and is never re-enqueued.
//
// # Basic Usage
//
//	orch, err := offline.New(offline.DefaultConfig(transport.NewHTTP(cfg)))
//	if err != nil {
//		return err
//	}
//	if _, err := orch.Restore(ctx); err != nil {
//		return err
//	}
//
//	resp, err := orch.Execute(ctx, request.New(request.MethodGet, "/v1/items"))
//
//	// Non-blocking variant: a queued request returns an unresolved handle.
//	h := orch.Submit(ctx, request.New(request.MethodPost, "/v1/items").WithBody(body))
//	select {
//	case <-h.Done():
//		resp, err := h.Result()
//	default:
//		// queued, resolves after reconnect
//	}
//
// # Feature Flag
//
// When a FlagSource is configured and reports FlagOfflineSupport as disabled,
// Execute sends requests straight to the transport without cache, retry or
// queue.
package offline

package offline

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/resilient-net/internal/testutil"
	"github.com/Sternrassler/resilient-net/pkg/cache"
	"github.com/Sternrassler/resilient-net/pkg/queue"
	"github.com/Sternrassler/resilient-net/pkg/request"
	"github.com/Sternrassler/resilient-net/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	itemsURL  = "https://api.example.com/items"
	ordersURL = "https://api.example.com/orders"
)

var errUpstream = errors.New("upstream unavailable")

// noSleep makes retries immediate.
func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type staticFlags map[string]bool

func (f staticFlags) IsEnabled(name string) bool { return f[name] }

// failingPersistence accepts Load but fails every Save.
type failingPersistence struct {
	*queue.Memory
}

func (f failingPersistence) Save(ctx context.Context, reqs []request.Request) error {
	return errors.New("disk full")
}

func newTestOrchestrator(t *testing.T, tr Transport, mutate func(*Config)) *Orchestrator {
	t.Helper()

	cfg := DefaultConfig(tr)
	cfg.Retry = retry.NewEngine(retry.WithSleep(noSleep))
	if mutate != nil {
		mutate(&cfg)
	}

	o, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.Close(ctx)
	})
	return o
}

func waitResolved(t *testing.T, h *queue.Handle) (*request.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := h.Wait(ctx)
	require.False(t, errors.Is(err, context.DeadlineExceeded), "handle was not resolved in time")
	return resp, err
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{
			name:     "nil transport",
			mutate:   func(c *Config) { c.Transport = nil },
			errorMsg: "transport is required",
		},
		{
			name:     "negative retries",
			mutate:   func(c *Config) { c.RetryPolicy.MaxRetries = -1 },
			errorMsg: "max_retries must be >= 0 (got -1)",
		},
		{
			name:     "enabled cache without ttl",
			mutate:   func(c *Config) { c.CachePolicy = cache.Policy{Enabled: true} },
			errorMsg: "cache ttl must be > 0 when caching is enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(testutil.NewFakeTransport())
			tt.mutate(&cfg)
			_, err := New(cfg)
			require.Error(t, err)
			assert.Equal(t, tt.errorMsg, err.Error())
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	o, err := New(Config{Transport: testutil.NewFakeTransport()})
	require.NoError(t, err)

	assert.NotNil(t, o.persistence)
	assert.NotNil(t, o.cache)
	assert.NotNil(t, o.retry)
	assert.False(t, o.Online(), "zero Config starts offline")
}

func TestExecute_CacheHit(t *testing.T) {
	tr := testutil.NewFakeTransport()
	tr.Route(itemsURL, func(ctx context.Context, req *request.Request) (*request.Response, error) {
		return &request.Response{StatusCode: 200, Body: []byte(`[1,2,3]`)}, nil
	})
	o := newTestOrchestrator(t, tr, nil)
	policy := cache.Policy{Enabled: true, TTL: 5 * time.Second}

	first, err := o.Execute(context.Background(), request.New(request.MethodGet, itemsURL), WithCachePolicy(policy))
	require.NoError(t, err)

	second, err := o.Execute(context.Background(), request.New(request.MethodGet, itemsURL), WithCachePolicy(policy))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotSame(t, first, second)
	assert.Equal(t, 1, tr.CallCount())
}

func TestExecute_CachedResponseIsolatedFromCallers(t *testing.T) {
	tr := testutil.NewFakeTransport()
	tr.Route(itemsURL, func(ctx context.Context, req *request.Request) (*request.Response, error) {
		return &request.Response{
			StatusCode: 200,
			Headers:    http.Header{"Etag": []string{"v1"}},
			Body:       []byte(`[1,2,3]`),
		}, nil
	})
	o := newTestOrchestrator(t, tr, nil)
	policy := cache.Policy{Enabled: true, TTL: 5 * time.Second}

	first, err := o.Execute(context.Background(), request.New(request.MethodGet, itemsURL), WithCachePolicy(policy))
	require.NoError(t, err)
	first.Body[0] = 'X'
	first.Headers.Set("Etag", "tampered")

	second, err := o.Execute(context.Background(), request.New(request.MethodGet, itemsURL), WithCachePolicy(policy))
	require.NoError(t, err)
	second.Body[1] = 'Y'

	third, err := o.Execute(context.Background(), request.New(request.MethodGet, itemsURL), WithCachePolicy(policy))
	require.NoError(t, err)

	assert.Equal(t, `[1,2,3]`, string(third.Body))
	assert.Equal(t, "v1", third.Headers.Get("Etag"))
	assert.Equal(t, 1, tr.CallCount())
}

func TestExecute_CacheExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	tr := testutil.NewFakeTransport()
	o := newTestOrchestrator(t, tr, func(c *Config) {
		c.Cache = cache.NewStore(cache.WithClock(clock.Now))
	})
	policy := cache.Policy{Enabled: true, TTL: 5 * time.Second}

	_, err := o.Execute(context.Background(), request.New(request.MethodGet, itemsURL), WithCachePolicy(policy))
	require.NoError(t, err)

	clock.Advance(5 * time.Second)

	_, err = o.Execute(context.Background(), request.New(request.MethodGet, itemsURL), WithCachePolicy(policy))
	require.NoError(t, err)

	assert.Equal(t, 2, tr.CallCount())
}

func TestExecute_CacheOnlyForSuccessfulGet(t *testing.T) {
	tr := testutil.NewFakeTransport()
	calls := 0
	tr.Route(itemsURL, func(ctx context.Context, req *request.Request) (*request.Response, error) {
		calls++
		if calls == 1 {
			return nil, errUpstream
		}
		return &request.Response{StatusCode: 200}, nil
	})
	o := newTestOrchestrator(t, tr, func(c *Config) { c.RetryPolicy = retry.NoRetry })

	_, err := o.Execute(context.Background(), request.New(request.MethodGet, itemsURL))
	require.ErrorIs(t, err, errUpstream)

	// POST responses are never cached.
	_, err = o.Execute(context.Background(), request.New(request.MethodPost, ordersURL))
	require.NoError(t, err)
	_, err = o.Execute(context.Background(), request.New(request.MethodPost, ordersURL))
	require.NoError(t, err)

	assert.Equal(t, 3, tr.CallCount())
	assert.Equal(t, 0, o.Stats().CacheEntries)
}

func TestExecute_DisabledCachePolicyBypassesCache(t *testing.T) {
	tr := testutil.NewFakeTransport()
	o := newTestOrchestrator(t, tr, nil)

	for i := 0; i < 3; i++ {
		_, err := o.Execute(context.Background(), request.New(request.MethodGet, itemsURL), WithCachePolicy(cache.Disabled))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, tr.CallCount())
}

func TestExecute_RetryBound(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	tr := testutil.NewFakeTransport()
	tr.Fallback(func(ctx context.Context, req *request.Request) (*request.Response, error) {
		return nil, errUpstream
	})
	o := newTestOrchestrator(t, tr, func(c *Config) {
		c.Retry = retry.NewEngine()
	})

	policy := retry.Policy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, ExponentialBackoff: true}
	start := time.Now()
	_, err := o.Execute(context.Background(), request.New(request.MethodGet, itemsURL), WithRetryPolicy(policy))
	elapsed := time.Since(start)

	assert.Same(t, errUpstream, err, "failure must be propagated unchanged")
	assert.Equal(t, 4, tr.CallCount())
	assert.GreaterOrEqual(t, elapsed, 600*time.Millisecond)
	assert.Less(t, elapsed, 900*time.Millisecond)

	times := tr.CallTimes()
	require.Len(t, times, 4)
	for i, want := range []time.Duration{100, 200, 300} {
		gap := times[i+1].Sub(times[i])
		assert.GreaterOrEqual(t, gap, want*time.Millisecond, "gap before retry %d", i+1)
	}
}

func TestExecute_RequestRetryOverrides(t *testing.T) {
	tests := []struct {
		name      string
		req       *request.Request
		wantCalls int
	}{
		{"policy bound", request.New(request.MethodGet, itemsURL), 4},
		{"skip retry", &request.Request{Method: request.MethodGet, URL: itemsURL, SkipRetry: true}, 1},
		{"max retries override", request.New(request.MethodGet, itemsURL).WithMaxRetries(1), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := testutil.NewFakeTransport()
			tr.Fallback(func(ctx context.Context, req *request.Request) (*request.Response, error) {
				return nil, errUpstream
			})
			o := newTestOrchestrator(t, tr, func(c *Config) {
				c.RetryPolicy = retry.Policy{MaxRetries: 3}
			})

			_, err := o.Execute(context.Background(), tt.req)
			assert.ErrorIs(t, err, errUpstream)
			assert.Equal(t, tt.wantCalls, tr.CallCount())
		})
	}
}

func TestSubmit_OfflineQueueing(t *testing.T) {
	tr := testutil.NewFakeTransport()
	store := queue.NewMemory()
	o := newTestOrchestrator(t, tr, func(c *Config) {
		c.Persistence = store
		c.Online = false
	})

	req := request.New(request.MethodPost, ordersURL).WithBody([]byte(`{"qty":1}`))
	h := o.Submit(context.Background(), req)

	assert.False(t, h.IsResolved(), "queued request must return a pending handle")
	assert.Equal(t, 0, tr.CallCount())
	assert.Equal(t, 1, o.QueueLen())

	assert.Eventually(t, func() bool {
		saved, err := store.Load(context.Background())
		return err == nil && len(saved) == 1
	}, 2*time.Second, 5*time.Millisecond)

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []request.Request{*req}, saved)
}

func TestSubmit_OfflineGetIsNotQueued(t *testing.T) {
	tr := testutil.NewFakeTransport()
	o := newTestOrchestrator(t, tr, func(c *Config) { c.Online = false })

	h := o.Submit(context.Background(), request.New(request.MethodGet, itemsURL))

	assert.True(t, h.IsResolved())
	assert.Equal(t, 1, tr.CallCount())
	assert.Equal(t, 0, o.QueueLen())
}

func TestSubmit_WithoutQueueGoesToTransport(t *testing.T) {
	tr := testutil.NewFakeTransport()
	o := newTestOrchestrator(t, tr, func(c *Config) { c.Online = false })

	resp, err := o.Execute(context.Background(), request.New(request.MethodPost, ordersURL), WithoutQueue())

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, tr.CallCount())
	assert.Equal(t, 0, o.QueueLen())
}

func TestSetOnline_DrainsInFIFOOrder(t *testing.T) {
	tr := testutil.NewFakeTransport()
	o := newTestOrchestrator(t, tr, func(c *Config) { c.Online = false })

	first := o.Submit(context.Background(), request.New(request.MethodPost, ordersURL+"/1"))
	second := o.Submit(context.Background(), request.New(request.MethodPost, ordersURL+"/2"))

	var firstResolvedBeforeSecondCall bool
	tr.Route(ordersURL+"/2", func(ctx context.Context, req *request.Request) (*request.Response, error) {
		firstResolvedBeforeSecondCall = first.IsResolved()
		return &request.Response{StatusCode: 201}, nil
	})

	o.SetOnline(true)

	_, err := waitResolved(t, first)
	require.NoError(t, err)
	resp, err := waitResolved(t, second)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)

	calls := tr.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, ordersURL+"/1", calls[0].URL)
	assert.Equal(t, ordersURL+"/2", calls[1].URL)
	assert.True(t, firstResolvedBeforeSecondCall)
}

func TestDrain_Isolation(t *testing.T) {
	tr := testutil.NewFakeTransport()
	tr.Route(ordersURL+"/bad", func(ctx context.Context, req *request.Request) (*request.Response, error) {
		return nil, errUpstream
	})
	o := newTestOrchestrator(t, tr, func(c *Config) {
		c.Online = false
		c.RetryPolicy = retry.Policy{MaxRetries: 2}
	})

	bad := o.Submit(context.Background(), request.New(request.MethodPost, ordersURL+"/bad"))
	good := o.Submit(context.Background(), request.New(request.MethodPost, ordersURL+"/good"))

	o.SetOnline(true)

	_, err := waitResolved(t, bad)
	assert.Same(t, errUpstream, err)

	resp, err := waitResolved(t, good)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	// 3 attempts for the failing item, 1 for the good one, no re-enqueue.
	assert.Equal(t, 4, tr.CallCount())
	assert.Eventually(t, func() bool { return o.QueueLen() == 0 && !o.Stats().Draining }, 2*time.Second, 5*time.Millisecond)
}

func TestDrain_PersistsRemainingQueue(t *testing.T) {
	tr := testutil.NewFakeTransport()
	store := queue.NewMemory()
	o := newTestOrchestrator(t, tr, func(c *Config) {
		c.Persistence = store
		c.Online = false
	})

	h := o.Submit(context.Background(), request.New(request.MethodPut, ordersURL+"/1"))
	assert.Eventually(t, func() bool {
		saved, _ := store.Load(context.Background())
		return len(saved) == 1
	}, 2*time.Second, 5*time.Millisecond)

	o.SetOnline(true)
	_, err := waitResolved(t, h)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		saved, _ := store.Load(context.Background())
		return len(saved) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDrain_StopsWhenConnectivityLost(t *testing.T) {
	tr := testutil.NewFakeTransport()
	o := newTestOrchestrator(t, tr, func(c *Config) { c.Online = false })

	release := make(chan struct{})
	tr.Route(ordersURL+"/1", func(ctx context.Context, req *request.Request) (*request.Response, error) {
		<-release
		return &request.Response{StatusCode: 200}, nil
	})

	first := o.Submit(context.Background(), request.New(request.MethodPost, ordersURL+"/1"))
	second := o.Submit(context.Background(), request.New(request.MethodPost, ordersURL+"/2"))

	o.SetOnline(true)
	assert.Eventually(t, func() bool { return tr.CallCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	// A second trigger while draining is a no-op.
	assert.False(t, o.TriggerDrain())

	o.SetOnline(false)
	close(release)

	_, err := waitResolved(t, first)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return !o.Stats().Draining }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, second.IsResolved())
	assert.Equal(t, 1, o.QueueLen())

	o.SetOnline(true)
	_, err = waitResolved(t, second)
	require.NoError(t, err)
	assert.Equal(t, 2, tr.CallCount())
}

func TestDrain_UsesDefaultRetryPolicyAndNoCache(t *testing.T) {
	tr := testutil.NewFakeTransport()
	calls := 0
	var mu sync.Mutex
	tr.Route(itemsURL, func(ctx context.Context, req *request.Request) (*request.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return nil, errUpstream
		}
		return &request.Response{StatusCode: 200}, nil
	})
	o := newTestOrchestrator(t, tr, func(c *Config) {
		c.Online = false
		c.RetryPolicy = retry.Policy{MaxRetries: 2}
	})

	// The per-call retry override is not carried into the queue.
	h := o.Submit(context.Background(), request.New(request.MethodDelete, itemsURL), WithRetryPolicy(retry.NoRetry))
	o.SetOnline(true)

	_, err := waitResolved(t, h)
	require.NoError(t, err)
	assert.Equal(t, 3, tr.CallCount())
	assert.Equal(t, 0, o.Stats().CacheEntries)
}

func TestExecute_WaitGivesUpButItemStaysQueued(t *testing.T) {
	tr := testutil.NewFakeTransport()
	o := newTestOrchestrator(t, tr, func(c *Config) { c.Online = false })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := o.Execute(ctx, request.New(request.MethodPost, ordersURL))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, o.QueueLen())

	o.SetOnline(true)
	assert.Eventually(t, func() bool { return tr.CallCount() == 1 && o.QueueLen() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestSubmit_FeatureFlagPassThrough(t *testing.T) {
	tr := testutil.NewFakeTransport()
	tr.Route(ordersURL, func(ctx context.Context, req *request.Request) (*request.Response, error) {
		return nil, errUpstream
	})
	o := newTestOrchestrator(t, tr, func(c *Config) {
		c.Online = false
		c.Flags = staticFlags{FlagOfflineSupport: false}
	})

	// Offline POST goes straight to the transport, without retries.
	_, err := o.Execute(context.Background(), request.New(request.MethodPost, ordersURL))
	assert.Same(t, errUpstream, err)
	assert.Equal(t, 1, tr.CallCount())
	assert.Equal(t, 0, o.QueueLen())

	// GETs are not cached.
	for i := 0; i < 2; i++ {
		_, err := o.Execute(context.Background(), request.New(request.MethodGet, itemsURL))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, tr.CallCount())
	assert.Equal(t, 0, o.Stats().CacheEntries)
}

func TestSubmit_FeatureFlagEnabled(t *testing.T) {
	tr := testutil.NewFakeTransport()
	o := newTestOrchestrator(t, tr, func(c *Config) {
		c.Online = false
		c.Flags = staticFlags{FlagOfflineSupport: true}
	})

	h := o.Submit(context.Background(), request.New(request.MethodPost, ordersURL))
	assert.False(t, h.IsResolved())
	assert.Equal(t, 0, tr.CallCount())
}

func TestSubmit_PersistFailureDoesNotFailEnqueue(t *testing.T) {
	tr := testutil.NewFakeTransport()
	persistErrs := make(chan error, 4)
	o := newTestOrchestrator(t, tr, func(c *Config) {
		c.Online = false
		c.Persistence = failingPersistence{queue.NewMemory()}
		c.OnPersistError = func(err error) { persistErrs <- err }
	})

	h := o.Submit(context.Background(), request.New(request.MethodPost, ordersURL))
	assert.False(t, h.IsResolved())
	assert.Equal(t, 1, o.QueueLen())

	select {
	case err := <-persistErrs:
		assert.EqualError(t, err, "disk full")
	case <-time.After(2 * time.Second):
		t.Fatal("OnPersistError was not called")
	}

	o.SetOnline(true)
	_, err := waitResolved(t, h)
	require.NoError(t, err)
}

func TestSubmit_NilRequest(t *testing.T) {
	o := newTestOrchestrator(t, testutil.NewFakeTransport(), nil)

	_, err := o.Execute(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilRequest)
}

func TestSubmit_CallerMutationDoesNotLeakIntoQueue(t *testing.T) {
	o := newTestOrchestrator(t, testutil.NewFakeTransport(), func(c *Config) { c.Online = false })

	req := request.New(request.MethodPost, ordersURL).WithBody([]byte("v1"))
	o.Submit(context.Background(), req)
	req.Body[1] = '2'

	pending := o.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "v1", string(pending[0].Body))
}

func TestRestore(t *testing.T) {
	tr := testutil.NewFakeTransport()
	store := queue.NewMemory()
	require.NoError(t, store.Save(context.Background(), []request.Request{
		*request.New(request.MethodPost, ordersURL+"/restored-1"),
		*request.New(request.MethodPost, ordersURL+"/restored-2"),
	}))

	o := newTestOrchestrator(t, tr, func(c *Config) {
		c.Persistence = store
		c.Online = false
	})

	o.Submit(context.Background(), request.New(request.MethodPost, ordersURL+"/new"))

	// The save scheduled by Submit lands before Restore runs.
	assert.Eventually(t, func() bool {
		saved, err := store.Load(context.Background())
		return err == nil && len(saved) == 3
	}, 2*time.Second, 5*time.Millisecond)

	n, err := o.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, saved, 3)
	assert.Equal(t, ordersURL+"/restored-1", saved[0].URL)
	assert.Equal(t, ordersURL+"/new", saved[2].URL)

	pending := o.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, ordersURL+"/restored-1", pending[0].URL)
	assert.Equal(t, ordersURL+"/restored-2", pending[1].URL)
	assert.Equal(t, ordersURL+"/new", pending[2].URL)

	o.SetOnline(true)
	assert.Eventually(t, func() bool { return tr.CallCount() == 3 && o.QueueLen() == 0 }, 2*time.Second, 5*time.Millisecond)

	calls := tr.Calls()
	assert.Equal(t, ordersURL+"/restored-1", calls[0].URL)
	assert.Equal(t, ordersURL+"/new", calls[2].URL)
}

func TestRestore_BeforeFirstSave(t *testing.T) {
	tr := testutil.NewFakeTransport()
	store := queue.NewMemory()
	require.NoError(t, store.Save(context.Background(), []request.Request{
		*request.New(request.MethodPost, ordersURL+"/restored-1"),
	}))

	o := newTestOrchestrator(t, tr, func(c *Config) {
		c.Persistence = store
		c.Online = false
	})

	n, err := o.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	o.Submit(context.Background(), request.New(request.MethodPost, ordersURL+"/new"))

	assert.Eventually(t, func() bool {
		saved, err := store.Load(context.Background())
		return err == nil && len(saved) == 2
	}, 2*time.Second, 5*time.Millisecond)

	n, err = o.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the stored queue is loaded once")

	pending := o.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, ordersURL+"/restored-1", pending[0].URL)
	assert.Equal(t, ordersURL+"/new", pending[1].URL)
}

func TestClose_RejectsNewWork(t *testing.T) {
	tr := testutil.NewFakeTransport()
	store := queue.NewMemory()
	o := newTestOrchestrator(t, tr, func(c *Config) {
		c.Persistence = store
		c.Online = false
	})

	o.Submit(context.Background(), request.New(request.MethodPost, ordersURL))
	require.NoError(t, o.Close(context.Background()))

	_, err := o.Submit(context.Background(), request.New(request.MethodPost, ordersURL+"/late")).Wait(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	_, err = o.Restore(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	o.SetOnline(true)
	assert.False(t, o.TriggerDrain())
	assert.Equal(t, 0, tr.CallCount())
	assert.Equal(t, 1, o.QueueLen())

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, ordersURL, saved[0].URL)
}

func TestRestore_OnlineDrainsImmediately(t *testing.T) {
	tr := testutil.NewFakeTransport()
	store := queue.NewMemory()
	require.NoError(t, store.Save(context.Background(), []request.Request{
		*request.New(request.MethodPost, ordersURL),
	}))

	o := newTestOrchestrator(t, tr, func(c *Config) { c.Persistence = store })

	n, err := o.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Eventually(t, func() bool { return tr.CallCount() == 1 && o.QueueLen() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestConcurrentSubmitWhileOffline(t *testing.T) {
	tr := testutil.NewFakeTransport()
	o := newTestOrchestrator(t, tr, func(c *Config) { c.Online = false })

	const n = 50
	handles := make([]*queue.Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = o.Submit(context.Background(), request.New(request.MethodPost, ordersURL))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, n, o.QueueLen())

	o.SetOnline(true)
	for _, h := range handles {
		_, err := waitResolved(t, h)
		require.NoError(t, err)
	}
	assert.Equal(t, n, tr.CallCount())
}

func TestSetOnline_Idempotent(t *testing.T) {
	o := newTestOrchestrator(t, testutil.NewFakeTransport(), nil)

	o.SetOnline(true)
	assert.True(t, o.Online())
	o.SetOnline(false)
	o.SetOnline(false)
	assert.False(t, o.Online())
	assert.False(t, o.TriggerDrain(), "nothing to drain while offline")
}

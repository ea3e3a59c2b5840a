package queue

import (
	"context"
	"sync"
	"testing"

	"github.com/Sternrassler/resilient-net/pkg/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// persistenceFactory creates a fresh backend for each test.
type persistenceFactory func(t *testing.T) Persistence

// runPersistenceSuite checks the contract every backend must satisfy.
func runPersistenceSuite(t *testing.T, factory persistenceFactory) {
	t.Helper()

	t.Run("LoadEmpty", func(t *testing.T) {
		p := factory(t)
		ctx := context.Background()
		require.NoError(t, p.Initialize(ctx))

		reqs, err := p.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, reqs)
	})

	t.Run("InitializeIdempotent", func(t *testing.T) {
		p := factory(t)
		ctx := context.Background()
		require.NoError(t, p.Initialize(ctx))
		require.NoError(t, p.Initialize(ctx))
	})

	t.Run("RoundTripsEveryField", func(t *testing.T) {
		p := factory(t)
		ctx := context.Background()
		require.NoError(t, p.Initialize(ctx))

		want := sampleRequests()
		require.NoError(t, p.Save(ctx, want))

		got, err := p.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		p := factory(t)
		ctx := context.Background()
		require.NoError(t, p.Initialize(ctx))

		reqs := sampleRequests()
		require.NoError(t, p.Save(ctx, reqs))
		require.NoError(t, p.Save(ctx, reqs[1:]))

		got, err := p.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, reqs[1:], got)

		require.NoError(t, p.Save(ctx, nil))
		got, err = p.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Clear", func(t *testing.T) {
		p := factory(t)
		ctx := context.Background()
		require.NoError(t, p.Initialize(ctx))

		require.NoError(t, p.Save(ctx, sampleRequests()))
		require.NoError(t, p.Clear(ctx))
		require.NoError(t, p.Clear(ctx))

		got, err := p.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ConcurrentSavesNeverTear", func(t *testing.T) {
		p := factory(t)
		ctx := context.Background()
		require.NoError(t, p.Initialize(ctx))

		reqs := sampleRequests()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, p.Save(ctx, reqs[:i%len(reqs)+1]))
			}(i)
		}
		wg.Wait()

		got, err := p.Load(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, reqs[:len(got)], got, "snapshot must be one of the saved prefixes")
	})
}

// sampleRequests exercises every request field, including nil versus empty.
func sampleRequests() []request.Request {
	three := 3
	zero := 0
	return []request.Request{
		{
			Method:     request.MethodPost,
			URL:        "https://api.example.com/orders",
			Body:       []byte(`{"item":"widget","qty":2}`),
			Headers:    map[string]string{"Content-Type": "application/json", "X-Trace": "t-1"},
			Query:      map[string]string{"dry_run": "false"},
			MaxRetries: &three,
			Priority:   5,
		},
		{
			Method:    request.MethodDelete,
			URL:       "https://api.example.com/orders/42",
			SkipRetry: true,
		},
		{
			Method:     request.MethodPatch,
			URL:        "https://api.example.com/orders/7",
			Body:       []byte{0x00, 0xff, 0x10},
			Headers:    map[string]string{},
			Query:      map[string]string{},
			MaxRetries: &zero,
			Priority:   -1,
		},
	}
}

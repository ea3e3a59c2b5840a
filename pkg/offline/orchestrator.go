package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/resilient-net/pkg/cache"
	"github.com/Sternrassler/resilient-net/pkg/logging"
	"github.com/Sternrassler/resilient-net/pkg/queue"
	"github.com/Sternrassler/resilient-net/pkg/request"
	"github.com/Sternrassler/resilient-net/pkg/retry"
	"github.com/rs/zerolog"
)

// FlagOfflineSupport gates the whole layer. When a FlagSource reports it as
// disabled, requests pass straight through to the transport.
const FlagOfflineSupport = "offline_support"

// ErrNilRequest is returned when Submit or Execute is called without a request.
var ErrNilRequest = errors.New("request is required")

// ErrClosed is returned for requests submitted after Close.
var ErrClosed = errors.New("orchestrator closed")

// Transport performs one request and returns one response or fails.
type Transport interface {
	Do(ctx context.Context, req *request.Request) (*request.Response, error)
}

// FlagSource answers feature flag lookups.
type FlagSource interface {
	IsEnabled(name string) bool
}

// Config holds the orchestrator configuration.
type Config struct {
	// Transport performs requests (REQUIRED)
	Transport Transport

	// Persistence keeps a durable copy of the queue (default: in-memory)
	Persistence queue.Persistence

	// Flags gates offline support; nil means always enabled
	Flags FlagSource

	// Cache is the response store (default: new empty store)
	Cache *cache.Store

	// Retry runs attempt cycles (default: real sleeping engine)
	Retry *retry.Engine

	// Default policies, used when a call does not override them
	CachePolicy cache.Policy
	RetryPolicy retry.Policy

	// Online is the initial connectivity state
	Online bool

	// OnPersistError is called when a queue snapshot cannot be saved.
	// The in-memory queue stays valid.
	OnPersistError func(error)

	// Now replaces time.Now for enqueue timestamps
	Now func() time.Time
}

// DefaultConfig returns a configuration with default policies, an in-memory
// queue store and the orchestrator starting online.
func DefaultConfig(t Transport) Config {
	return Config{
		Transport:   t,
		Persistence: queue.NewMemory(),
		CachePolicy: cache.DefaultPolicy(),
		RetryPolicy: retry.DefaultPolicy(),
		Online:      true,
	}
}

// Orchestrator serves requests from cache, the transport or the offline
// queue. Construct one per composition root and share the pointer.
type Orchestrator struct {
	transport      Transport
	persistence    queue.Persistence
	flags          FlagSource
	cache          *cache.Store
	retry          *retry.Engine
	cachePolicy    cache.Policy
	retryPolicy    retry.Policy
	onPersistError func(error)
	now            func() time.Time
	logger         zerolog.Logger

	mu       sync.Mutex
	online   bool
	queue    []*queue.Item
	draining bool
	closed   bool

	// persistMu serializes snapshot+save so saves land in mutation order.
	// It also guards restored and restoredCount.
	persistMu     sync.Mutex
	restored      bool
	restoredCount int

	// background tracks drain and persist goroutines. Add is only called
	// under mu while closed is false.
	background sync.WaitGroup
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.RetryPolicy.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.RetryPolicy.MaxRetries)
	}
	if cfg.CachePolicy.Enabled && cfg.CachePolicy.TTL <= 0 {
		return nil, fmt.Errorf("cache ttl must be > 0 when caching is enabled")
	}

	if cfg.Persistence == nil {
		cfg.Persistence = queue.NewMemory()
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewStore()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	logger := logging.NewLogger("offline")
	if cfg.Retry == nil {
		cfg.Retry = retry.NewEngine(retry.WithLogger(logging.NewLogger("retry")))
	}

	o := &Orchestrator{
		transport:      cfg.Transport,
		persistence:    cfg.Persistence,
		flags:          cfg.Flags,
		cache:          cfg.Cache,
		retry:          cfg.Retry,
		cachePolicy:    cfg.CachePolicy,
		retryPolicy:    cfg.RetryPolicy,
		onPersistError: cfg.OnPersistError,
		now:            cfg.Now,
		logger:         logger,
		online:         cfg.Online,
	}
	setOnlineGauge(cfg.Online)
	queueLength.Set(0)

	return o, nil
}

// Execute runs req and waits for its outcome. For a request queued while
// offline this blocks until a later drain replays it, or until ctx is done;
// giving up does not remove the request from the queue.
func (o *Orchestrator) Execute(ctx context.Context, req *request.Request, opts ...ExecuteOption) (*request.Response, error) {
	return o.Submit(ctx, req, opts...).Wait(ctx)
}

// Submit decides the fate of req. Cache hits and attempt cycles complete
// before Submit returns, so their handle is already resolved. A request
// queued while offline returns an unresolved handle.
func (o *Orchestrator) Submit(ctx context.Context, req *request.Request, opts ...ExecuteOption) *queue.Handle {
	if req == nil {
		return queue.Resolved(nil, ErrNilRequest)
	}
	startTime := time.Now()
	if o.isClosed() {
		o.record("closed", startTime)
		return queue.Resolved(nil, ErrClosed)
	}
	req = req.Clone()

	// Escape hatch, checked before anything else.
	if o.flags != nil && !o.flags.IsEnabled(FlagOfflineSupport) {
		resp, err := o.transport.Do(ctx, req)
		o.record("passthrough", startTime)
		return queue.Resolved(resp, err)
	}

	options := executeOptions{
		cache:          o.cachePolicy,
		retry:          o.retryPolicy,
		queueIfOffline: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	fingerprint := cache.Fingerprint(req)

	if options.cache.Enabled {
		if entry, ok := o.cache.Get(fingerprint); ok {
			o.logger.Debug().
				Str("fingerprint", fingerprint).
				Dur("ttl", entry.TTL(time.Now())).
				Msg("Serving from cache")
			o.record("cache_hit", startTime)
			return queue.Resolved(entry.Response.Clone(), nil)
		}
	}

	if options.queueIfOffline && req.Method != request.MethodGet {
		if h, ok := o.enqueueIfOffline(req, startTime); ok {
			return h
		}
	}

	resp, err := o.attempt(ctx, req, fingerprint, options.cache, options.retry)
	if err != nil {
		o.record("failure", startTime)
		return queue.Resolved(nil, err)
	}
	o.record("success", startTime)
	return queue.Resolved(resp, nil)
}

// enqueueIfOffline appends req to the queue when offline and schedules a
// save. It reports false when online.
func (o *Orchestrator) enqueueIfOffline(req *request.Request, startTime time.Time) (*queue.Handle, bool) {
	o.mu.Lock()
	if o.online {
		o.mu.Unlock()
		return nil, false
	}
	if o.closed {
		o.mu.Unlock()
		o.record("closed", startTime)
		return queue.Resolved(nil, ErrClosed), true
	}
	item := queue.NewItem(req, o.now())
	o.queue = append(o.queue, item)
	n := len(o.queue)
	o.background.Add(1)
	o.mu.Unlock()

	o.record("queued", startTime)

	queueLength.Set(float64(n))
	o.logger.Info().
		Str("item_id", item.ID).
		Str("method", string(req.Method)).
		Str("url", req.URL).
		Int("queue_len", n).
		Msg("Offline, request queued")

	go o.persistInBackground()
	return item.Handle, true
}

// attempt runs one attempt cycle and caches successful GET responses.
func (o *Orchestrator) attempt(ctx context.Context, req *request.Request, fingerprint string, cp cache.Policy, rp retry.Policy) (*request.Response, error) {
	resp, err := retry.Do(ctx, o.retry, effectiveRetry(rp, req), func(ctx context.Context) (*request.Response, error) {
		return o.transport.Do(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	if cp.Enabled && req.Method == request.MethodGet {
		o.cache.Set(fingerprint, resp.Clone(), cp.TTL)
		o.logger.Debug().
			Str("fingerprint", fingerprint).
			Dur("ttl", cp.TTL).
			Msg("Cached response")
	}
	return resp, nil
}

// SetOnline updates the connectivity flag. Going from offline to online
// starts a drain unless one is already running.
func (o *Orchestrator) SetOnline(online bool) {
	o.mu.Lock()
	was := o.online
	o.online = online
	o.mu.Unlock()

	setOnlineGauge(online)
	if was == online {
		return
	}

	o.logger.Info().Bool("online", online).Msg("Connectivity changed")
	if online {
		o.TriggerDrain()
	}
}

// TriggerDrain starts draining the queue if online, the queue is not empty
// and no drain is running. It reports whether a drain was started.
// Reconnection calls it; external schedulers may call it periodically.
func (o *Orchestrator) TriggerDrain() bool {
	o.mu.Lock()
	if !o.online || o.draining || o.closed || len(o.queue) == 0 {
		o.mu.Unlock()
		return false
	}
	o.draining = true
	o.background.Add(1)
	o.mu.Unlock()

	go o.drain()
	return true
}

// drain replays queued requests in FIFO order until the queue is empty or
// connectivity is lost, then persists what is left.
func (o *Orchestrator) drain() {
	defer o.background.Done()

	ctx := context.Background()
	succeeded, failed := 0, 0
	o.logger.Info().Int("queue_len", o.QueueLen()).Msg("Draining offline queue")

	for {
		o.mu.Lock()
		if !o.online || len(o.queue) == 0 {
			o.draining = false
			remaining := len(o.queue)
			o.mu.Unlock()
			queueLength.Set(float64(remaining))
			break
		}
		item := o.queue[0]
		o.queue[0] = nil
		o.queue = o.queue[1:]
		remaining := len(o.queue)
		o.mu.Unlock()

		queueLength.Set(float64(remaining))
		item.Attempts++

		resp, err := o.attempt(ctx, item.Request, "", cache.Disabled, o.retryPolicy)
		item.Handle.Resolve(resp, err)

		if err != nil {
			failed++
			drainedTotal.WithLabelValues("failure").Inc()
			o.logger.Warn().
				Err(err).
				Str("item_id", item.ID).
				Str("url", item.Request.URL).
				Msg("Queued request failed")
			continue
		}
		succeeded++
		drainedTotal.WithLabelValues("success").Inc()
		o.logger.Debug().
			Str("item_id", item.ID).
			Int("status", resp.StatusCode).
			Msg("Queued request replayed")
	}

	_ = o.persist(ctx)

	o.logger.Info().
		Int("succeeded", succeeded).
		Int("failed", failed).
		Int("queue_len", o.QueueLen()).
		Msg("Drain finished")
}

// persistInBackground saves the queue for a caller that does not wait.
// The matching background.Add happens in the caller under mu.
func (o *Orchestrator) persistInBackground() {
	defer o.background.Done()
	_ = o.persist(context.Background())
}

// persist saves the current queue. The snapshot is taken after acquiring
// persistMu so the last save always reflects the newest queue state. A save
// never runs before the stored queue has been merged in, otherwise it would
// overwrite requests saved by an earlier process.
func (o *Orchestrator) persist(ctx context.Context) error {
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	if !o.restored {
		if _, err := o.restoreLocked(ctx); err != nil {
			o.persistFailed(err, o.QueueLen())
			return err
		}
	}

	o.mu.Lock()
	snapshot := queue.Requests(o.queue)
	o.mu.Unlock()

	if err := o.persistence.Save(ctx, snapshot); err != nil {
		o.persistFailed(err, len(snapshot))
		return err
	}
	return nil
}

func (o *Orchestrator) persistFailed(err error, queueLen int) {
	persistFailuresTotal.Inc()
	o.logger.Warn().
		Err(err).
		Int("queue_len", queueLen).
		Msg("Queue persistence failed, queue still valid in memory")
	if o.onPersistError != nil {
		o.onPersistError(err)
	}
}

// restoreLocked loads the stored queue ahead of the in-memory one. It runs
// once per orchestrator; persistMu must be held.
func (o *Orchestrator) restoreLocked(ctx context.Context) (int, error) {
	if err := o.persistence.Initialize(ctx); err != nil {
		return 0, fmt.Errorf("initialize queue persistence: %w", err)
	}
	reqs, err := o.persistence.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load queue: %w", err)
	}
	o.restored = true
	o.restoredCount = len(reqs)
	if len(reqs) == 0 {
		return 0, nil
	}

	now := o.now()
	restored := make([]*queue.Item, 0, len(reqs))
	for i := range reqs {
		restored = append(restored, queue.NewItem(reqs[i].Clone(), now))
	}

	o.mu.Lock()
	o.queue = append(restored, o.queue...)
	n := len(o.queue)
	o.mu.Unlock()

	queueLength.Set(float64(n))
	o.logger.Info().Int("restored", len(reqs)).Msg("Restored offline queue")

	o.TriggerDrain()
	return len(reqs), nil
}

// Restore initializes persistence and loads a previously saved queue ahead
// of anything queued since. Restored items have no waiting caller. A drain
// starts right away when online.
//
// The stored queue is loaded exactly once, by Restore or by the first save
// that precedes it. Restore returns the number of requests that load
// brought back, also when an earlier save performed it.
func (o *Orchestrator) Restore(ctx context.Context) (int, error) {
	if o.isClosed() {
		return 0, ErrClosed
	}

	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	if o.restored {
		o.TriggerDrain()
		return o.restoredCount, nil
	}
	return o.restoreLocked(ctx)
}

// Close rejects further requests, then waits for background drains and
// saves to finish, or for ctx. Requests submitted after Close fail with
// ErrClosed.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats is a point-in-time view of the orchestrator.
type Stats struct {
	Online       bool `json:"online"`
	Draining     bool `json:"draining"`
	QueueLength  int  `json:"queue_length"`
	CacheEntries int  `json:"cache_entries"`
}

// Stats returns the current state.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	s := Stats{
		Online:      o.online,
		Draining:    o.draining,
		QueueLength: len(o.queue),
	}
	o.mu.Unlock()
	s.CacheEntries = o.cache.Len()
	return s
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Online reports the connectivity flag.
func (o *Orchestrator) Online() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

// QueueLen returns the number of queued requests.
func (o *Orchestrator) QueueLen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Pending returns copies of the queued requests in drain order.
func (o *Orchestrator) Pending() []request.Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	return queue.Requests(o.queue)
}

func (o *Orchestrator) record(outcome string, start time.Time) {
	executionsTotal.WithLabelValues(outcome).Inc()
	executionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func setOnlineGauge(online bool) {
	if online {
		onlineGauge.Set(1)
	} else {
		onlineGauge.Set(0)
	}
}

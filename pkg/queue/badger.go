package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/resilient-net/pkg/request"
	badger "github.com/dgraph-io/badger/v4"
)

// Badger persists the queue snapshot under a single key of a BadgerDB.
type Badger struct {
	db   *badger.DB
	key  []byte
	owns bool
	mu   sync.Mutex
}

// NewBadger uses an already open database. The caller keeps ownership.
func NewBadger(db *badger.DB, key string) *Badger {
	if key == "" {
		key = DefaultKey
	}
	return &Badger{db: db, key: []byte(key)}
}

// OpenBadger opens a database at dir. An empty dir opens an in-memory
// database, which is only useful for tests.
func OpenBadger(dir, key string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	b := NewBadger(db, key)
	b.owns = true
	return b, nil
}

// Initialize checks the database is usable.
func (b *Badger) Initialize(ctx context.Context) error {
	if b.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Load reads the snapshot. A missing key is an empty queue.
func (b *Badger) Load(ctx context.Context) (reqs []request.Request, err error) {
	start := time.Now()
	defer func() { observe(BackendBadger, "load", start, err) }()

	reqs = []request.Request{}
	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, decErr := decodeSnapshot(val)
			if decErr != nil {
				return decErr
			}
			reqs = decoded
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("badger load queue: %w", err)
	}
	return reqs, nil
}

// Save writes the snapshot in one transaction.
func (b *Badger) Save(ctx context.Context, reqs []request.Request) (err error) {
	start := time.Now()
	defer func() { observe(BackendBadger, "save", start, err) }()

	data, err := encodeSnapshot(reqs)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key, data)
	})
	if err != nil {
		return fmt.Errorf("badger save queue: %w", err)
	}
	return nil
}

// Clear deletes the snapshot key.
func (b *Badger) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key)
	})
	if err != nil {
		return fmt.Errorf("badger clear queue: %w", err)
	}
	return nil
}

// Close closes the database if it was opened by OpenBadger.
func (b *Badger) Close() error {
	if !b.owns {
		return nil
	}
	return b.db.Close()
}

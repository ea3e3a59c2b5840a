package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Sternrassler/resilient-net/pkg/request"
)

// File persists the queue as a JSON document. Saves write a temporary file
// next to the target and rename it over the target.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a file-backed store at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Initialize creates the parent directory.
func (f *File) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create queue directory: %w", err)
	}
	return nil
}

// Load reads the last saved snapshot. A missing file is an empty queue.
func (f *File) Load(ctx context.Context) (reqs []request.Request, err error) {
	start := time.Now()
	defer func() { observe(BackendFile, "load", start, err) }()

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return []request.Request{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue file: %w", err)
	}
	return decodeSnapshot(data)
}

// Save atomically replaces the file with reqs.
func (f *File) Save(ctx context.Context, reqs []request.Request) (err error) {
	start := time.Now()
	defer func() { observe(BackendFile, "save", start, err) }()

	data, err := encodeSnapshot(reqs)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp queue file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp queue file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp queue file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp queue file: %w", err)
	}
	if err = os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace queue file: %w", err)
	}
	return nil
}

// Clear removes the file.
func (f *File) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove queue file: %w", err)
	}
	return nil
}

// Close is a no-op.
func (f *File) Close() error {
	return nil
}

// Package journal keeps bounded, append-only logs in JSON files.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File is an append-only log of T capped at a fixed number of entries.
// Once full, each append evicts the oldest entry.
type File[T any] struct {
	mu       sync.Mutex
	path     string
	capacity int
}

// New returns a log stored at path keeping at most capacity entries.
func New[T any](path string, capacity int) *File[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &File[T]{path: path, capacity: capacity}
}

// Capacity reports the retention limit.
func (f *File[T]) Capacity() int {
	return f.capacity
}

// Append adds entry at the end of the log and trims the oldest entries beyond capacity.
func (f *File[T]) Append(ctx context.Context, entry T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return err
	}

	entries = append(entries, entry)
	if over := len(entries) - f.capacity; over > 0 {
		entries = entries[over:]
	}

	return f.write(entries)
}

// All returns every entry, oldest first.
func (f *File[T]) All(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.read()
}

// Recent returns up to limit entries, newest first.
func (f *File[T]) Recent(ctx context.Context, limit int) ([]T, error) {
	entries, err := f.All(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}

	out := make([]T, 0, limit)
	for i := len(entries) - 1; i >= len(entries)-limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (f *File[T]) read() ([]T, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var entries []T
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode journal %s: %w", f.path, err)
	}
	return entries, nil
}

func (f *File[T]) write(entries []T) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode journal: %w", err)
	}
	return WriteFileAtomic(f.path, data)
}

// WriteFileAtomic writes data to a temp file next to path and renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Package snapshot persists the snapshot currently shown on the site.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/k544228/for-news/internal/journal"
	"github.com/k544228/for-news/internal/models"
)

// FileStore keeps the current snapshot in a JSON file.
type FileStore struct {
	mu   sync.RWMutex
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the stored snapshot. A missing file yields an empty snapshot.
func (s *FileStore) Load(ctx context.Context) (models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return models.Snapshot{}, nil
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return models.Snapshot{}, nil
	}

	snap, err := models.DecodeSnapshot(bytes.NewReader(data))
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("load %s: %w", s.path, err)
	}
	return snap, nil
}

// Save replaces the stored snapshot.
func (s *FileStore) Save(ctx context.Context, snap models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return journal.WriteFileAtomic(s.path, data)
}

// Stat reports size and modification time of the snapshot file.
func (s *FileStore) Stat() (os.FileInfo, error) {
	return os.Stat(s.path)
}

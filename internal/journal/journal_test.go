package journal_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/k544228/for-news/internal/journal"
)

type entry struct {
	N int `json:"n"`
}

func TestAppendEvictsOldest(t *testing.T) {
	ctx := context.Background()
	log := journal.New[entry](filepath.Join(t.TempDir(), "records.json"), 3)

	for i := 1; i <= 3; i++ {
		require.NoError(t, log.Append(ctx, entry{N: i}))
	}
	all, err := log.All(ctx)
	require.NoError(t, err)
	require.Equal(t, []entry{{1}, {2}, {3}}, all)

	require.NoError(t, log.Append(ctx, entry{N: 4}))
	all, err = log.All(ctx)
	require.NoError(t, err)
	require.Equal(t, []entry{{2}, {3}, {4}}, all)
}

func TestRecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	log := journal.New[entry](filepath.Join(t.TempDir(), "records.json"), 10)

	empty, err := log.Recent(ctx, 5)
	require.NoError(t, err)
	require.Empty(t, empty)

	for i := 1; i <= 5; i++ {
		require.NoError(t, log.Append(ctx, entry{N: i}))
	}

	got, err := log.Recent(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []entry{{5}, {4}}, got)

	got, err = log.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 5)
	require.Equal(t, entry{1}, got[4])
}

func TestPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "records.json")

	require.NoError(t, journal.New[entry](path, 2).Append(ctx, entry{N: 7}))

	all, err := journal.New[entry](path, 2).All(ctx)
	require.NoError(t, err)
	require.Equal(t, []entry{{7}}, all)
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := journal.New[entry](path, 2).All(context.Background())
	require.Error(t, err)
}

func TestConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	log := journal.New[entry](filepath.Join(t.TempDir(), "records.json"), 100)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = log.Append(ctx, entry{N: i})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	all, err := log.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 20)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log := journal.New[entry](filepath.Join(t.TempDir(), "records.json"), 2)
	require.ErrorIs(t, log.Append(ctx, entry{N: 1}), context.Canceled)
}

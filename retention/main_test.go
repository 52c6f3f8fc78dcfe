package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/k544228/for-news/internal/config"
	"github.com/k544228/for-news/internal/logger"
)

type stubDeleter struct {
	maxAge time.Duration
	batch  int
	n      int64
	err    error
}

func (s *stubDeleter) DeleteOlderThan(_ context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	s.maxAge, s.batch = maxAge, batchSize
	return s.n, s.err
}

func TestRunOncePassesRetentionSettings(t *testing.T) {
	cfg := &config.Retention{MaxAge: 720 * time.Hour, BatchSize: 500}
	es := &stubDeleter{n: 42}

	require.Equal(t, int64(42), runOnce(context.Background(), logger.Discard(), es, cfg))
	require.Equal(t, 720*time.Hour, es.maxAge)
	require.Equal(t, 500, es.batch)
}

func TestRunOnceSwallowsErrors(t *testing.T) {
	cfg := &config.Retention{MaxAge: time.Hour, BatchSize: 10}
	es := &stubDeleter{n: 3, err: errors.New("cluster red")}

	require.Zero(t, runOnce(context.Background(), logger.Discard(), es, cfg))
}

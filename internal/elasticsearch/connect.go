package elasticsearch

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ConnectOptions bound the startup retry loop.
type ConnectOptions struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConnectOptions retries for a few minutes, enough for a cold cluster start.
var DefaultConnectOptions = ConnectOptions{Attempts: 10, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second}

// ErrUnavailable is returned when the cluster never answered a ping.
var ErrUnavailable = errors.New("elasticsearch unavailable")

// Connect creates a client and waits until the cluster answers a ping, doubling the delay
// between attempts.
func Connect(ctx context.Context, addr, index string, log *slog.Logger, opts ConnectOptions) (*Client, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	delay := opts.InitialDelay

	var lastErr error
	for i := 0; i < opts.Attempts; i++ {
		client, err := New(addr, index, log)
		if err != nil {
			lastErr = err
			log.Warn("failed to create elasticsearch client, retrying",
				slog.Any("err", err),
				slog.Int("attempt", i+1),
				slog.Int("max_retries", opts.Attempts),
			)
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			lastErr = client.Ping(pingCtx)
			cancel()
			if lastErr == nil {
				log.Info("connected to elasticsearch", slog.String("addr", addr), slog.String("index", index))
				return client, nil
			}
			log.Warn("elasticsearch ping failed, retrying",
				slog.Any("err", lastErr),
				slog.Int("attempt", i+1),
				slog.Int("max_retries", opts.Attempts),
				slog.Duration("retry_in", delay),
			)
		}

		if i == opts.Attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
		if opts.MaxDelay > 0 && delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
	return nil, errors.Join(ErrUnavailable, lastErr)
}

// Package connect opens the network clients shared by buses, caches and
// stores, retrying with backoff until the backend answers.
package connect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

var (
	ErrEmptyURL = errors.New("empty connection url")
	ErrBadURL   = errors.New("unsupported connection url")
)

// Retry describes how often and how long to wait between connection attempts.
type Retry struct {
	Attempts int
	Backoff  time.Duration
}

func (r Retry) retrier() *retry.Retrier {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return retry.NewRetrier(attempts, 100*time.Millisecond, backoff)
}

// Run calls fn until it succeeds or the attempts are exhausted.
func (r Retry) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.retrier().RunContext(ctx, fn)
}

// Redis parses a redis:// or rediss:// URL and returns a client that has
// answered a ping.
func Redis(ctx context.Context, url string, r Retry) (*redis.Client, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	if !strings.HasPrefix(url, "redis://") && !strings.HasPrefix(url, "rediss://") {
		return nil, fmt.Errorf("%w: %s", ErrBadURL, url)
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := r.Run(ctx, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis not ready: %w", err)
	}
	return client, nil
}

// NATS connects to a NATS server, reconnecting forever once established.
func NATS(ctx context.Context, url, name string, r Retry) (*nats.Conn, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	opts := nats.GetDefaultOptions()
	opts.Url = url
	opts.Name = name
	opts.ReconnectWait = 2 * time.Second
	opts.MaxReconnect = -1

	var conn *nats.Conn
	err := r.Run(ctx, func(context.Context) error {
		var err error
		conn, err = opts.Connect()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("nats not ready: %w", err)
	}
	return conn, nil
}

// Package redisbus implements core.Bus on Redis Pub/Sub.
package redisbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomsync-server/internal/core"
)

// Bus publishes to and subscribes on Redis channels. The client is owned by
// the caller.
type Bus struct {
	client *redis.Client
	log    *zerolog.Logger

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

var _ core.Bus = (*Bus)(nil)

// New wraps client.
func New(client *redis.Client, logger *zerolog.Logger) *Bus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bus{
		client: client,
		log:    logger,
		subs:   make(map[*subscription]struct{}),
	}
}

// Publish sends payload to every subscriber of topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("%w: redis publish %s: %w", core.ErrBusUnavailable, topic, err)
	}
	return nil
}

type subscription struct {
	bus    *Bus
	ps     *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Subscribe returns once Redis has confirmed the subscription, so messages
// published afterwards reach handler.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler core.Handler) (core.Subscription, error) {
	ps := b.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: redis subscribe %s: %w", core.ErrBusUnavailable, topic, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &subscription{
		bus:    b,
		ps:     ps,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	messages := ps.Channel()

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer close(sub.done)
		for msg := range messages {
			handler(runCtx, []byte(msg.Payload))
		}
		b.log.Debug().Str("topic", topic).Msg("redis subscription closed")
	}()
	return sub, nil
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()

		s.cancel()
		err = s.ps.Close()
		<-s.done
	})
	return err
}

// Ping checks the Redis connection.
func (b *Bus) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrBusUnavailable, err)
	}
	return nil
}

// Close drops all subscriptions made through the bus.
func (b *Bus) Close() error {
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Package natsbus implements core.Bus on core NATS subjects.
package natsbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomsync-server/internal/core"
)

// ErrDisconnected is reported by Ping while the connection is down.
var ErrDisconnected = errors.New("nats: not connected")

const flushTimeout = 2 * time.Second

// Bus maps topics to NATS subjects. The connection is owned by the caller.
type Bus struct {
	conn *nats.Conn
	log  *zerolog.Logger

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

var _ core.Bus = (*Bus)(nil)

// New wraps conn.
func New(conn *nats.Conn, logger *zerolog.Logger) *Bus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bus{
		conn: conn,
		log:  logger,
		subs: make(map[*subscription]struct{}),
	}
}

// Publish sends payload on the topic subject. While reconnecting NATS buffers
// the message; it only fails once the connection is closed.
func (b *Bus) Publish(_ context.Context, topic string, payload []byte) error {
	if err := b.conn.Publish(topic, payload); err != nil {
		return fmt.Errorf("%w: nats publish %s: %w", core.ErrBusUnavailable, topic, err)
	}
	return nil
}

type subscription struct {
	bus    *Bus
	sub    *nats.Subscription
	cancel context.CancelFunc
	once   sync.Once
}

// Subscribe registers handler and flushes so the server knows about the
// interest before Subscribe returns. NATS calls the handler of one
// subscription sequentially.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler core.Handler) (core.Subscription, error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ns, err := b.conn.Subscribe(topic, func(msg *nats.Msg) {
		handler(runCtx, msg.Data)
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: nats subscribe %s: %w", core.ErrBusUnavailable, topic, err)
	}
	if err := b.flush(ctx); err != nil {
		cancel()
		_ = ns.Unsubscribe()
		return nil, fmt.Errorf("%w: nats flush %s: %w", core.ErrBusUnavailable, topic, err)
	}

	sub := &subscription{bus: b, sub: ns, cancel: cancel}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()

		s.cancel()
		if uerr := s.sub.Unsubscribe(); uerr != nil && !errors.Is(uerr, nats.ErrConnectionClosed) && !errors.Is(uerr, nats.ErrBadSubscription) {
			err = uerr
		}
	})
	return err
}

// Ping checks that the connection is up and round-trips to the server.
func (b *Bus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("%w: %w", core.ErrBusUnavailable, ErrDisconnected)
	}
	if err := b.flush(ctx); err != nil {
		return fmt.Errorf("%w: %w", core.ErrBusUnavailable, err)
	}
	return nil
}

// flush round-trips to the server. FlushWithContext requires a deadline.
func (b *Bus) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); ok {
		return b.conn.FlushWithContext(ctx)
	}
	return b.conn.FlushTimeout(flushTimeout)
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

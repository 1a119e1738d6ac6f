// Package membus is an in-process broadcast bus for replicas that share one
// process, such as tests and single-binary demos.
package membus

import (
	"context"
	"errors"
	"sync"

	"github.com/vovakirdan/roomsync-server/internal/core"
)

// ErrClosed is returned by a closed bus.
var ErrClosed = errors.New("membus: closed")

// Bus fans each published message out to every live subscriber of its topic.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[*subscription]struct{}
	closed bool
}

var _ core.Bus = (*Bus)(nil)

// New creates a bus.
//
// Publish never waits on subscribers: each subscription queues without bound
// and drains in its own goroutine. A handler may therefore publish, or wait on
// a lock held by a publisher, without stalling the bus.
func New() *Bus {
	return &Bus{
		topics: make(map[string]map[*subscription]struct{}),
	}
}

type subscription struct {
	bus    *Bus
	topic  string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	pending [][]byte
	wake    chan struct{}
}

// Publish queues a copy of payload for each subscriber of topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for sub := range b.topics[topic] {
		sub.push(append([]byte(nil), payload...))
	}
	return nil
}

func (s *subscription) push(msg []byte) {
	s.mu.Lock()
	s.pending = append(s.pending, msg)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) take() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.pending
	s.pending = nil
	return batch
}

// Subscribe starts a goroutine that feeds topic messages to handler in order.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler core.Handler) (core.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &subscription{
		bus:    b,
		topic:  topic,
		cancel: cancel,
		done:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
	}
	set, ok := b.topics[topic]
	if !ok {
		set = make(map[*subscription]struct{})
		b.topics[topic] = set
	}
	set[sub] = struct{}{}

	go sub.run(runCtx, handler)
	return sub, nil
}

func (s *subscription) run(ctx context.Context, handler core.Handler) {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			for _, msg := range s.take() {
				if ctx.Err() != nil {
					return
				}
				handler(ctx, msg)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close removes the subscription and waits for its goroutine to stop.
// Messages still queued are discarded.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if set, ok := s.bus.topics[s.topic]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.bus.topics, s.topic)
			}
		}
		s.bus.mu.Unlock()
		s.cancel()
		<-s.done
	})
	return nil
}

// Ping reports whether the bus is open.
func (b *Bus) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close stops every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*subscription
	for _, set := range b.topics {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

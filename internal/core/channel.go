package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// EventChannel binds a bus topic to one replica. It encodes outgoing events,
// decodes incoming ones and drops events the replica published itself.
type EventChannel struct {
	bus    Bus
	topic  string
	origin string
	log    *zerolog.Logger
}

// NewEventChannel creates a channel for topic on behalf of replica origin.
func NewEventChannel(bus Bus, topic, origin string, logger *zerolog.Logger) *EventChannel {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventChannel{bus: bus, topic: topic, origin: origin, log: logger}
}

// Topic returns the channel topic.
func (c *EventChannel) Topic() string { return c.topic }

// Origin returns the replica id stamped on published events.
func (c *EventChannel) Origin() string { return c.origin }

// Publish sends ev. Failures are reported as ErrBusUnavailable.
func (c *EventChannel) Publish(ctx context.Context, ev SyncEvent) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	if err := c.bus.Publish(ctx, c.topic, data); err != nil {
		if errors.Is(err, ErrBusUnavailable) {
			return err
		}
		return fmt.Errorf("%w: publish %s: %w", ErrBusUnavailable, c.topic, err)
	}
	return nil
}

// Listen subscribes fn to events from other replicas. Malformed events are
// logged and skipped.
func (c *EventChannel) Listen(ctx context.Context, fn func(ctx context.Context, ev SyncEvent)) (Subscription, error) {
	sub, err := c.bus.Subscribe(ctx, c.topic, func(ctx context.Context, payload []byte) {
		ev, err := DecodeEvent(payload)
		if err != nil {
			c.log.Error().Err(err).Str("topic", c.topic).Msg("dropping malformed sync event")
			return
		}
		if ev.Origin != "" && ev.Origin == c.origin {
			return
		}
		fn(ctx, ev)
	})
	if err != nil {
		if errors.Is(err, ErrBusUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: subscribe %s: %w", ErrBusUnavailable, c.topic, err)
	}
	return sub, nil
}

// Ping checks the underlying bus.
func (c *EventChannel) Ping(ctx context.Context) error {
	return c.bus.Ping(ctx)
}

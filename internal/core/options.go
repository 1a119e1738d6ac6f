package core

import "github.com/rs/zerolog"

// StrategyOptions holds the settings common to every strategy.
type StrategyOptions struct {
	Policy   CreatePolicy
	Notifier ChangeNotifier
	Logger   *zerolog.Logger
}

// Option configures a strategy.
type Option func(*StrategyOptions)

// WithCreatePolicy sets the double-create policy.
func WithCreatePolicy(p CreatePolicy) Option {
	return func(o *StrategyOptions) {
		o.Policy = p
	}
}

// WithNotifier registers a listener for room changes.
func WithNotifier(n ChangeNotifier) Option {
	return func(o *StrategyOptions) {
		o.Notifier = n
	}
}

// WithLogger sets the strategy logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(o *StrategyOptions) {
		o.Logger = l
	}
}

// ApplyOptions resolves opts over the defaults: reject policy, no notifier,
// no-op logger.
func ApplyOptions(opts ...Option) StrategyOptions {
	nop := zerolog.Nop()
	o := StrategyOptions{
		Policy:   CreateReject,
		Notifier: noopNotifier{},
		Logger:   &nop,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Notifier == nil {
		o.Notifier = noopNotifier{}
	}
	if o.Logger == nil {
		o.Logger = &nop
	}
	if o.Policy == "" {
		o.Policy = CreateReject
	}
	return o
}

type noopNotifier struct{}

func (noopNotifier) RoomChanged(Kind, string) {}

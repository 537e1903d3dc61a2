package kernel

import (
	"context"
	"log/slog"
	"time"
)

// Limits bounds module hooks, shutdown and the defaults applied to
// subscriptions that leave their own settings empty.
type Limits struct {
	ModuleHookTimeout   time.Duration
	ShutdownTimeout     time.Duration
	HandlerTimeout      time.Duration
	SubscriptionBuffer  int
	SubscriptionWorkers int
}

// DefaultLimits returns the limits a kernel uses when none are configured.
func DefaultLimits() Limits {
	return Limits{
		ModuleHookTimeout:   5 * time.Second,
		ShutdownTimeout:     10 * time.Second,
		HandlerTimeout:      3 * time.Second,
		SubscriptionBuffer:  256,
		SubscriptionWorkers: 1,
	}
}

// orDefaults fills every non-positive field of l from fallback.
func (l Limits) orDefaults(fallback Limits) Limits {
	return Limits{
		ModuleHookTimeout:   positiveOr(l.ModuleHookTimeout, fallback.ModuleHookTimeout),
		ShutdownTimeout:     positiveOr(l.ShutdownTimeout, fallback.ShutdownTimeout),
		HandlerTimeout:      positiveOr(l.HandlerTimeout, fallback.HandlerTimeout),
		SubscriptionBuffer:  positiveOr(l.SubscriptionBuffer, fallback.SubscriptionBuffer),
		SubscriptionWorkers: positiveOr(l.SubscriptionWorkers, fallback.SubscriptionWorkers),
	}
}

func positiveOr[T int | time.Duration](value, fallback T) T {
	if value > 0 {
		return value
	}

	return fallback
}

type config struct {
	limits            Limits
	logger            *slog.Logger
	onAsyncError      func(context.Context, string, error)
	commandErrorReply bool
}

// Option configures a kernel at construction.
type Option func(*config)

func defaultConfig() config {
	logger := slog.Default()

	return config{
		limits:            DefaultLimits(),
		logger:            logger,
		onAsyncError:      logAsyncError(logger),
		commandErrorReply: true,
	}
}

func logAsyncError(logger *slog.Logger) func(context.Context, string, error) {
	return func(ctx context.Context, scope string, err error) {
		logger.ErrorContext(ctx, "kernel async error", "scope", scope, "error", err)
	}
}

// WithLimits overrides the non-zero fields of limits.
func WithLimits(limits Limits) Option {
	return func(cfg *config) {
		cfg.limits = limits.orDefaults(cfg.limits)
	}
}

// WithLogger sets the kernel logger. Unless WithAsyncErrorHandler is also
// given, asynchronous handler failures are logged through it as well.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger == nil {
			return
		}
		cfg.logger = logger
		cfg.onAsyncError = logAsyncError(logger)
	}
}

// WithAsyncErrorHandler receives failures from subscription workers.
func WithAsyncErrorHandler(handler func(context.Context, string, error)) Option {
	return func(cfg *config) {
		if handler != nil {
			cfg.onAsyncError = handler
		}
	}
}

// WithCommandErrorReplies toggles usage replies for malformed registered commands.
func WithCommandErrorReplies(enabled bool) Option {
	return func(cfg *config) {
		cfg.commandErrorReply = enabled
	}
}

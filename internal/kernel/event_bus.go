package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"ex-otogi-trade/pkg/otogi"
)

// EventBus fans published events out to bounded per-subscription queues.
//
// Subscribers never share a queue or a worker, so one slow handler only
// delays its own subscription.
type EventBus struct {
	mu     sync.RWMutex
	subs   []*busSubscription
	closed bool
	lastID atomic.Int64

	limits       Limits
	onAsyncError func(context.Context, string, error)
	counters     busCounters
}

type busCounters struct {
	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// BusStats is a point-in-time view of bus counters.
type BusStats struct {
	// Published counts events accepted by Publish.
	Published uint64
	// Delivered counts events that reached at least one queue.
	Delivered uint64
	// Dropped counts per-subscription enqueue failures.
	Dropped uint64
	// Subscriptions is the number of live subscriptions.
	Subscriptions int
}

// NewEventBus creates a bus whose subscriptions default to limits.
// onAsyncError receives drops and handler failures; nil discards them.
func NewEventBus(limits Limits, onAsyncError func(context.Context, string, error)) *EventBus {
	return &EventBus{
		limits:       limits.orDefaults(DefaultLimits()),
		onAsyncError: onAsyncError,
	}
}

// Publish enqueues event on every subscription whose interest matches.
//
// Drops are reported through the async error handler. Only a blocking
// enqueue that gives up on ctx fails the publish.
func (b *EventBus) Publish(ctx context.Context, event *otogi.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("publish event %s: %w", event.ID, ErrBusClosed)
	}
	targets := slices.Clone(b.subs)
	b.mu.RUnlock()

	b.counters.published.Add(1)

	var (
		failures []error
		reached  bool
	)
	for _, sub := range targets {
		if !sub.interest.Matches(event) {
			continue
		}
		switch err := sub.enqueue(ctx, event); {
		case err == nil:
			reached = true
		case errors.Is(err, otogi.ErrEventDropped), errors.Is(err, otogi.ErrSubscriptionClosed):
			b.counters.dropped.Add(1)
			b.report(ctx, sub.spec.Name, fmt.Errorf("event %s: %w", event.ID, err))
		default:
			failures = append(failures, err)
		}
	}
	if reached {
		b.counters.delivered.Add(1)
	}
	if len(failures) > 0 {
		return fmt.Errorf("publish event %s: %w", event.ID, errors.Join(failures...))
	}

	return nil
}

// Subscribe starts a consumer with its own queue and workers.
func (b *EventBus) Subscribe(
	ctx context.Context,
	interest otogi.InterestSet,
	spec otogi.SubscriptionSpec,
	handler otogi.EventHandler,
) (otogi.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", spec.Name, err)
	}
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: %w: nil handler", spec.Name, otogi.ErrInvalidSubscription)
	}

	id := b.lastID.Add(1)
	spec, err := b.withDefaults(spec, id)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("subscribe %s: %w", spec.Name, ErrBusClosed)
	}
	sub := startSubscription(b, id, interest, spec, handler)
	b.subs = append(b.subs, sub)

	return sub, nil
}

// Stats returns current bus counters.
func (b *EventBus) Stats() BusStats {
	b.mu.RLock()
	live := len(b.subs)
	b.mu.RUnlock()

	return BusStats{
		Published:     b.counters.published.Load(),
		Delivered:     b.counters.delivered.Load(),
		Dropped:       b.counters.dropped.Load(),
		Subscriptions: live,
	}
}

// Close stops every subscription. Later publishes and subscribes fail with
// ErrBusClosed.
func (b *EventBus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	var failures []error
	for _, sub := range subs {
		if err := sub.stop(ctx); err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("close event bus: %w", errors.Join(failures...))
	}

	return nil
}

// withDefaults fills omitted spec fields from the bus limits.
func (b *EventBus) withDefaults(spec otogi.SubscriptionSpec, id int64) (otogi.SubscriptionSpec, error) {
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("subscription-%d", id)
	}
	spec.Buffer = positiveOr(spec.Buffer, b.limits.SubscriptionBuffer)
	spec.Workers = positiveOr(spec.Workers, b.limits.SubscriptionWorkers)
	spec.HandlerTimeout = positiveOr(spec.HandlerTimeout, b.limits.HandlerTimeout)

	switch spec.Backpressure {
	case "":
		spec.Backpressure = otogi.BackpressureDropNewest
	case otogi.BackpressureDropNewest, otogi.BackpressureDropOldest, otogi.BackpressureBlock:
	default:
		return otogi.SubscriptionSpec{}, fmt.Errorf(
			"subscribe %s: %w: unsupported backpressure %q",
			spec.Name, otogi.ErrInvalidSubscription, spec.Backpressure,
		)
	}

	return spec, nil
}

// remove detaches sub and waits for its workers.
func (b *EventBus) remove(ctx context.Context, sub *busSubscription) error {
	b.mu.Lock()
	before := len(b.subs)
	b.subs = slices.DeleteFunc(b.subs, func(candidate *busSubscription) bool {
		return candidate == sub
	})
	found := len(b.subs) != before
	b.mu.Unlock()

	if !found {
		return nil
	}
	if err := sub.stop(ctx); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", sub.spec.Name, err)
	}

	return nil
}

func (b *EventBus) report(ctx context.Context, scope string, err error) {
	if b.onAsyncError != nil {
		b.onAsyncError(ctx, scope, err)
	}
}

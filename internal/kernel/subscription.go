package kernel

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"ex-otogi-trade/pkg/otogi"
)

// busSubscription owns one queue and the workers draining it. The queue
// is never closed; workers exit when the subscription context ends.
type busSubscription struct {
	bus      *EventBus
	id       int64
	interest otogi.InterestSet
	spec     otogi.SubscriptionSpec
	handler  otogi.EventHandler

	queue    chan *otogi.Event
	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
	stopOnce sync.Once
	exited   chan struct{}
}

func startSubscription(
	bus *EventBus,
	id int64,
	interest otogi.InterestSet,
	spec otogi.SubscriptionSpec,
	handler otogi.EventHandler,
) *busSubscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &busSubscription{
		bus:      bus,
		id:       id,
		interest: ownedInterest(interest),
		spec:     spec,
		handler:  handler,
		queue:    make(chan *otogi.Event, spec.Buffer),
		ctx:      ctx,
		cancel:   cancel,
		exited:   make(chan struct{}),
	}

	var workers sync.WaitGroup
	for worker := range spec.Workers {
		workers.Go(func() { sub.drain(worker) })
	}
	go func() {
		workers.Wait()
		close(sub.exited)
	}()

	return sub
}

// ownedInterest detaches the interest slices from the caller.
func ownedInterest(interest otogi.InterestSet) otogi.InterestSet {
	interest.Kinds = slices.Clone(interest.Kinds)
	interest.CommandNames = slices.Clone(interest.CommandNames)
	interest.ConversationTypes = slices.Clone(interest.ConversationTypes)
	interest.Sources = slices.Clone(interest.Sources)

	return interest
}

// Name returns the subscription name.
func (s *busSubscription) Name() string {
	return s.spec.Name
}

// Close detaches the subscription from its bus.
func (s *busSubscription) Close(ctx context.Context) error {
	return s.bus.remove(ctx, s)
}

// enqueue offers event to the queue, applying the backpressure policy when
// it is full.
func (s *busSubscription) enqueue(ctx context.Context, event *otogi.Event) error {
	if s.stopping.Load() {
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, otogi.ErrSubscriptionClosed)
	}
	if s.offer(event) {
		return nil
	}

	switch s.spec.Backpressure {
	case otogi.BackpressureDropOldest:
		select {
		case <-s.queue:
		default:
		}
		if s.offer(event) {
			return nil
		}
	case otogi.BackpressureBlock:
		select {
		case s.queue <- event:
			return nil
		case <-s.ctx.Done():
			return fmt.Errorf("enqueue %s: %w", s.spec.Name, otogi.ErrSubscriptionClosed)
		case <-ctx.Done():
			return fmt.Errorf("enqueue %s: %w", s.spec.Name, ctx.Err())
		}
	}

	return fmt.Errorf("enqueue %s: %w", s.spec.Name, otogi.ErrEventDropped)
}

func (s *busSubscription) offer(event *otogi.Event) bool {
	select {
	case s.queue <- event:
		return true
	default:
		return false
	}
}

func (s *busSubscription) drain(worker int) {
	scope := fmt.Sprintf("subscription %s worker %d", s.spec.Name, worker)
	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.queue:
			if err := s.deliver(scope, event); err != nil {
				s.bus.report(s.ctx, s.spec.Name, err)
			}
		}
	}
}

// deliver runs the handler once under the handler timeout and panic guard.
func (s *busSubscription) deliver(scope string, event *otogi.Event) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.spec.HandlerTimeout)
	defer cancel()

	if err := runSafely(scope, func() error { return s.handler(ctx, event) }); err != nil {
		return fmt.Errorf("handle event %s: %w", event.ID, err)
	}

	return nil
}

// stop cancels the workers and waits for them until ctx expires.
func (s *busSubscription) stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		s.cancel()
	})

	select {
	case <-s.exited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown subscription %s: %w", s.spec.Name, ctx.Err())
	}
}

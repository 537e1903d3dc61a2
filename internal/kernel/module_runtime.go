package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"ex-otogi-trade/pkg/otogi"
)

// moduleRecord is the kernel's view of one registered module.
type moduleRecord struct {
	name         string
	module       otogi.Module
	capabilities []otogi.Capability

	mu            sync.Mutex
	subscriptions []otogi.Subscription
}

// authorize admits interest when some declared capability covers it.
func (m *moduleRecord) authorize(subscription string, interest otogi.InterestSet) error {
	if len(m.capabilities) == 0 {
		return fmt.Errorf("subscription %s requires at least one declared capability", subscription)
	}
	covered := slices.ContainsFunc(m.capabilities, func(capability otogi.Capability) bool {
		return capability.Interest.Allows(interest)
	})
	if !covered {
		return fmt.Errorf("subscription %s is not covered by a declared capability", subscription)
	}

	return nil
}

func (m *moduleRecord) track(subscription otogi.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, subscription)
}

// closeSubscriptions closes and forgets every tracked subscription, so a
// second call is a no-op.
func (m *moduleRecord) closeSubscriptions(ctx context.Context) error {
	m.mu.Lock()
	subscriptions := m.subscriptions
	m.subscriptions = nil
	m.mu.Unlock()

	var errs []error
	for _, subscription := range subscriptions {
		if err := subscription.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close subscription %s: %w", subscription.Name(), err))
		}
	}

	return errors.Join(errs...)
}

// moduleRuntime is the otogi.ModuleRuntime handed to one module.
type moduleRuntime struct {
	record   *moduleRecord
	services otogi.ServiceRegistry
	bus      otogi.EventBus
}

// Services implements otogi.ModuleRuntime.
func (r *moduleRuntime) Services() otogi.ServiceRegistry {
	return r.services
}

// Subscribe implements otogi.ModuleRuntime. Subscriptions outside the
// module's declared capabilities are refused.
func (r *moduleRuntime) Subscribe(
	ctx context.Context,
	interest otogi.InterestSet,
	spec otogi.SubscriptionSpec,
	handler otogi.EventHandler,
) (otogi.Subscription, error) {
	if spec.Name == "" {
		spec.Name = r.record.name + "-subscription"
	}
	if err := r.record.authorize(spec.Name, interest); err != nil {
		return nil, fmt.Errorf("module %s: %w", r.record.name, err)
	}

	subscription, err := r.bus.Subscribe(ctx, interest, spec, handler)
	if err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", r.record.name, spec.Name, err)
	}
	r.record.track(subscription)

	return subscription, nil
}

package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"ex-otogi-trade/pkg/otogi"
)

// registration walks one module through the registration steps. Every
// completed step pushes its undo, and a failed step unwinds them newest
// first so the kernel is left as if the module never arrived.
type registration struct {
	kernel *Kernel
	record *moduleRecord
	spec   otogi.ModuleSpec
	undo   []func()
}

// RegisterModule validates a module spec, registers its commands, runs the
// optional OnRegister hook and subscribes its declared handlers.
//
// Any failure rolls back everything the module registered so far.
func (k *Kernel) RegisterModule(ctx context.Context, module otogi.Module) error {
	if module == nil {
		return fmt.Errorf("register module: nil module")
	}
	name := module.Name()
	if name == "" {
		return fmt.Errorf("register module: empty module name")
	}

	spec := module.Spec()
	if err := validateModuleSpec(spec); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}
	capabilities := spec.Capabilities()
	if err := k.requireServices(capabilities); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}

	reg := &registration{
		kernel: k,
		record: &moduleRecord{name: name, module: module, capabilities: capabilities},
		spec:   spec,
	}
	steps := []func(context.Context) error{
		reg.claimName,
		reg.claimCommands,
		reg.runRegisterHook,
		reg.subscribeHandlers,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			reg.unwind()
			return fmt.Errorf("register module %s: %w", name, err)
		}
	}

	return nil
}

func (r *registration) claimName(context.Context) error {
	k := r.kernel
	k.mu.Lock()
	defer k.mu.Unlock()

	if slices.ContainsFunc(k.modules, func(existing *moduleRecord) bool {
		return existing.name == r.record.name
	}) {
		return otogi.ErrModuleAlreadyRegistered
	}
	k.modules = append(k.modules, r.record)

	r.undo = append(r.undo, func() {
		k.mu.Lock()
		defer k.mu.Unlock()
		k.modules = slices.DeleteFunc(k.modules, func(existing *moduleRecord) bool {
			return existing == r.record
		})
	})

	return nil
}

func (r *registration) claimCommands(context.Context) error {
	if err := r.kernel.registerModuleCommands(r.record.name, r.spec.Commands); err != nil {
		return err
	}
	r.undo = append(r.undo, func() { r.kernel.unregisterModuleCommands(r.record.name) })

	return nil
}

// runRegisterHook also covers subscriptions the hook opened itself, which
// is why the undo is pushed before the hook runs.
func (r *registration) runRegisterHook(ctx context.Context) error {
	r.undo = append(r.undo, func() {
		_ = r.record.closeSubscriptions(context.Background())
	})

	registrar, ok := r.record.module.(otogi.ModuleRegistrar)
	if !ok {
		return nil
	}

	hookCtx, cancel := context.WithTimeout(ctx, r.kernel.cfg.limits.ModuleHookTimeout)
	defer cancel()
	runtime := &moduleRuntime{record: r.record, services: r.kernel.services, bus: r.kernel.bus}

	return runSafely("OnRegister", func() error {
		return registrar.OnRegister(hookCtx, runtime)
	})
}

func (r *registration) subscribeHandlers(ctx context.Context) error {
	for index, handler := range r.spec.Handlers {
		subscriptionSpec := handler.Subscription
		if subscriptionSpec.Name == "" {
			subscriptionSpec.Name = fmt.Sprintf("%s-handler-%d", r.record.name, index)
		}

		subscription, err := r.kernel.bus.Subscribe(ctx, handler.Capability.Interest, subscriptionSpec, handler.Handler)
		if err != nil {
			return fmt.Errorf("subscribe handler %s: %w", handler.Capability.Name, err)
		}
		r.record.track(subscription)
	}

	return nil
}

func (r *registration) unwind() {
	for _, undo := range slices.Backward(r.undo) {
		undo()
	}
	r.undo = nil
}

// requireServices reports every capability whose services are not
// registered yet, so OnRegister never sees a half-wired registry.
func (k *Kernel) requireServices(capabilities []otogi.Capability) error {
	var missing []error
	for _, capability := range capabilities {
		for _, service := range capability.RequiredServices {
			if _, err := k.services.Resolve(service); err != nil {
				missing = append(missing, fmt.Errorf("capability %s requires service %s: %w", capability.Name, service, err))
			}
		}
	}

	return errors.Join(missing...)
}

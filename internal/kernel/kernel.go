package kernel

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"ex-otogi-trade/pkg/otogi"
)

// Kernel wires modules and drivers to one event bus and one service registry.
//
// Modules and drivers are started in registration order and stopped in
// reverse order.
type Kernel struct {
	cfg config

	bus      *EventBus
	services *ServiceRegistry

	mu       sync.RWMutex
	modules  []*moduleRecord
	commands map[commandKey]commandRegistration
	drivers  []otogi.Driver

	runMu   sync.Mutex
	running bool
}

// New creates a kernel and registers its command catalog service.
func New(options ...Option) *Kernel {
	cfg := defaultConfig()
	for _, option := range options {
		option(&cfg)
	}

	k := &Kernel{
		cfg:      cfg,
		services: NewServiceRegistry(),
		bus:      NewEventBus(cfg.limits, cfg.onAsyncError),
		commands: make(map[commandKey]commandRegistration),
	}
	catalog := &kernelCommandCatalog{kernel: k}
	if err := k.services.Register(otogi.ServiceCommandCatalog, catalog); err != nil {
		cfg.onAsyncError(context.Background(), "register command catalog service", err)
	}

	return k
}

// EventBus exposes the kernel event bus to integration code.
func (k *Kernel) EventBus() otogi.EventBus {
	return k.bus
}

// Services exposes the kernel service registry.
func (k *Kernel) Services() otogi.ServiceRegistry {
	return k.services
}

// RegisterService registers a runtime service singleton.
func (k *Kernel) RegisterService(name string, service any) error {
	if err := k.services.Register(name, service); err != nil {
		return fmt.Errorf("register service %s: %w", name, err)
	}

	return nil
}

// RegisterDriver registers a platform driver.
func (k *Kernel) RegisterDriver(driver otogi.Driver) error {
	if driver == nil {
		return fmt.Errorf("register driver: nil driver")
	}
	name := driver.Name()
	if name == "" {
		return fmt.Errorf("register driver: empty name")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if slices.ContainsFunc(k.drivers, func(existing otogi.Driver) bool {
		return existing.Name() == name
	}) {
		return fmt.Errorf("register driver %s: %w", name, otogi.ErrDriverAlreadyRegistered)
	}
	k.drivers = append(k.drivers, driver)

	return nil
}

func (k *Kernel) moduleSnapshot() []*moduleRecord {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return slices.Clone(k.modules)
}

func (k *Kernel) driverSnapshot() []otogi.Driver {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return slices.Clone(k.drivers)
}

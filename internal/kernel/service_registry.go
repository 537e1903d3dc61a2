package kernel

import (
	"fmt"
	"slices"
	"sync"

	"ex-otogi-trade/pkg/otogi"
)

// ServiceRegistry holds named service singletons for one kernel.
//
// Registrations are permanent: a name can be bound once and never replaced.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]any
}

// NewServiceRegistry creates an empty service registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{services: make(map[string]any)}
}

// Register binds service to name. Typed nil values are rejected like nil.
func (r *ServiceRegistry) Register(name string, service any) error {
	switch {
	case name == "":
		return fmt.Errorf("register service: empty name")
	case otogi.IsNilService(service):
		return fmt.Errorf("register service %s: %w", name, otogi.ErrNilService)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.services[name]; exists {
		return fmt.Errorf("register service %s (holds %T): %w", name, existing, otogi.ErrServiceAlreadyRegistered)
	}
	r.services[name] = service

	return nil
}

// Resolve returns the service bound to name.
func (r *ServiceRegistry) Resolve(name string) (any, error) {
	if name == "" {
		return nil, fmt.Errorf("resolve service: empty name")
	}

	r.mu.RLock()
	service, exists := r.services[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("resolve service %s: %w", name, otogi.ErrServiceNotFound)
	}

	return service, nil
}

// Names lists registered service names in ascending order.
func (r *ServiceRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)

	return names
}

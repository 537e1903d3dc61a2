package otogi

import (
	"fmt"
	"log/slog"
	"reflect"
)

// Well-known service registry keys.
const (
	// ServiceSinkDispatcher resolves the composed outbound SinkDispatcher.
	ServiceSinkDispatcher = "otogi.sink_dispatcher"
	// ServiceLogger resolves the process-wide *slog.Logger.
	ServiceLogger = "logger"
	// ServiceCommandCatalog resolves the kernel CommandCatalog.
	ServiceCommandCatalog = "otogi.command_catalog"
)

// ServiceRegistry provides runtime dependency injection to modules and drivers.
type ServiceRegistry interface {
	// Register binds a singleton service value to a stable name.
	Register(name string, service any) error
	// Resolve returns a registered service by name.
	Resolve(name string) (any, error)
}

// ResolveAs resolves a service and asserts it to T.
func ResolveAs[T any](registry ServiceRegistry, name string) (T, error) {
	var zero T
	if registry == nil {
		return zero, fmt.Errorf("resolve service %s: nil registry", name)
	}

	service, err := registry.Resolve(name)
	if err != nil {
		return zero, fmt.Errorf("resolve service %s: %w", name, err)
	}
	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("resolve service %s: %w: got %T", name, ErrServiceType, service)
	}

	return typed, nil
}

// ResolveLogger returns the registered logger, or slog.Default when none is
// registered, tagged with the calling module name.
func ResolveLogger(registry ServiceRegistry, moduleName string) *slog.Logger {
	logger, err := ResolveAs[*slog.Logger](registry, ServiceLogger)
	if err != nil || logger == nil {
		logger = slog.Default()
	}
	if moduleName == "" {
		return logger
	}

	return logger.With("module", moduleName)
}

// IsNilService reports whether service is nil, including typed nil pointers,
// maps, slices, channels and funcs stored in an interface.
func IsNilService(service any) bool {
	if service == nil {
		return true
	}

	value := reflect.ValueOf(service)
	switch value.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return value.IsNil()
	default:
		return false
	}
}

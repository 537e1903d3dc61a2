package driver

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"ex-otogi-trade/pkg/otogi"
)

// Definition is one entry of the drivers config section.
type Definition struct {
	// Name identifies the driver instance and becomes its sink ID.
	Name    string
	Type    string
	Enabled bool
	// Config is the raw JSON object handed to the type's builder.
	Config []byte
}

// Runtime is a built driver together with its outbound side.
type Runtime struct {
	Source otogi.EventSource
	Driver otogi.Driver
	// SinkDispatcher is nil for drivers that cannot send.
	SinkDispatcher otogi.SinkDispatcher
}

// BuilderFunc builds the runtime for one definition of its type.
type BuilderFunc func(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error)

// Descriptor registers a driver type.
type Descriptor struct {
	Type     string
	Platform otogi.Platform
	Builder  BuilderFunc
}

func (d Descriptor) validate() error {
	switch {
	case d.Type == "":
		return fmt.Errorf("empty descriptor type")
	case d.Platform == "":
		return fmt.Errorf("type %s: empty platform", d.Type)
	case d.Builder == nil:
		return fmt.Errorf("type %s: nil builder", d.Type)
	}

	return nil
}

// Registry builds driver runtimes by type. It is immutable once created.
type Registry struct {
	descriptors map[string]Descriptor
}

// NewRegistry indexes descriptors by type, rejecting incomplete or
// duplicate ones.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	index := make(map[string]Descriptor, len(descriptors))
	for _, descriptor := range descriptors {
		if err := descriptor.validate(); err != nil {
			return nil, fmt.Errorf("new registry: %w", err)
		}
		if _, taken := index[descriptor.Type]; taken {
			return nil, fmt.Errorf("new registry: type %s: duplicate", descriptor.Type)
		}
		index[descriptor.Type] = descriptor
	}

	return &Registry{descriptors: index}, nil
}

// Types lists the registered driver types, sorted.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}

	return slices.Sorted(maps.Keys(r.descriptors))
}

// PlatformForType returns the platform a driver type serves.
func (r *Registry) PlatformForType(driverType string) (otogi.Platform, error) {
	descriptor, err := r.lookup(driverType)
	if err != nil {
		return "", fmt.Errorf("resolve platform: %w", err)
	}

	return descriptor.Platform, nil
}

func (r *Registry) lookup(driverType string) (Descriptor, error) {
	if r == nil {
		return Descriptor{}, fmt.Errorf("nil registry")
	}
	descriptor, ok := r.descriptors[driverType]
	if !ok {
		return Descriptor{}, fmt.Errorf("unsupported type %q", driverType)
	}

	return descriptor, nil
}

// BuildEnabled builds the enabled definitions in order. A runtime whose
// source is left empty is attributed to its platform and definition name.
func (r *Registry) BuildEnabled(ctx context.Context, definitions []Definition, logger *slog.Logger) ([]Runtime, error) {
	if r == nil {
		return nil, fmt.Errorf("build drivers: nil registry")
	}
	if logger == nil {
		logger = slog.Default()
	}

	runtimes := make([]Runtime, 0, len(definitions))
	built := make(map[string]bool, len(definitions))
	for _, definition := range definitions {
		if !definition.Enabled {
			logger.InfoContext(ctx, "driver disabled", "driver", definition.Name)
			continue
		}
		switch {
		case definition.Name == "":
			return nil, fmt.Errorf("build driver: empty name")
		case built[definition.Name]:
			return nil, fmt.Errorf("build driver %s: duplicate name", definition.Name)
		}
		built[definition.Name] = true

		runtime, err := r.build(ctx, definition, logger.With("driver", definition.Name))
		if err != nil {
			return nil, fmt.Errorf("build driver %s: %w", definition.Name, err)
		}
		runtimes = append(runtimes, runtime)
	}

	return runtimes, nil
}

func (r *Registry) build(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
	descriptor, err := r.lookup(definition.Type)
	if err != nil {
		return Runtime{}, err
	}

	runtime, err := descriptor.Builder(ctx, definition, logger)
	if err != nil {
		return Runtime{}, fmt.Errorf("type %s: %w", definition.Type, err)
	}
	if runtime.Driver == nil {
		return Runtime{}, fmt.Errorf("type %s: nil driver", definition.Type)
	}
	if runtime.Source.Platform == "" {
		runtime.Source.Platform = descriptor.Platform
	}
	if runtime.Source.ID == "" {
		runtime.Source.ID = definition.Name
	}

	return runtime, nil
}

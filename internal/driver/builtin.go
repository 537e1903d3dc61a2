package driver

import (
	"context"
	"fmt"
	"log/slog"

	"ex-otogi-trade/internal/driver/telegram"
)

// builtinDescriptors lists the drivers compiled into the bot binary.
func builtinDescriptors() []Descriptor {
	return []Descriptor{
		{
			Type:     telegram.DriverType,
			Platform: telegram.DriverPlatform,
			Builder:  buildTelegramRuntime,
		},
	}
}

// NewBuiltinRegistry constructs the registry of compiled-in drivers.
func NewBuiltinRegistry() (*Registry, error) {
	registry, err := NewRegistry(builtinDescriptors())
	if err != nil {
		return nil, fmt.Errorf("builtin driver registry: %w", err)
	}

	return registry, nil
}

// buildTelegramRuntime requires an outbound dispatcher because trade
// notifications and channel gating both send through it.
func buildTelegramRuntime(_ context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
	source, runtimeDriver, sinkDispatcher, err := telegram.BuildRuntimeFromConfig(
		definition.Name,
		logger,
		definition.Config,
	)
	if err != nil {
		return Runtime{}, fmt.Errorf("build telegram runtime: %w", err)
	}
	if sinkDispatcher == nil {
		return Runtime{}, fmt.Errorf("build telegram runtime: nil sink dispatcher")
	}

	return Runtime{
		Source:         source,
		Driver:         runtimeDriver,
		SinkDispatcher: sinkDispatcher,
	}, nil
}

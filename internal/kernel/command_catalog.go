package kernel

import (
	"context"
	"fmt"

	"ex-otogi-trade/pkg/otogi"
)

// kernelCommandCatalog serves the command registrations to modules as the
// command catalog service.
type kernelCommandCatalog struct {
	kernel *Kernel
}

// ListCommands returns one entry per registered command. Aliases stay on
// their entry instead of being listed separately.
func (c *kernelCommandCatalog) ListCommands(ctx context.Context) ([]otogi.RegisteredCommand, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	if c == nil || c.kernel == nil {
		return nil, fmt.Errorf("list commands: nil catalog")
	}

	return c.kernel.registeredCommands(), nil
}

var _ otogi.CommandCatalog = (*kernelCommandCatalog)(nil)

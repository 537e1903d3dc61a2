package otogi

import (
	"context"
	"slices"
	"strings"
)

// RegisteredCommand is one command registration as seen by the catalog.
type RegisteredCommand struct {
	// ModuleName identifies which module registered this command.
	ModuleName string
	// Command is the registered CommandSpec, aliases included.
	Command CommandSpec
}

// CommandCatalog lists registered commands.
//
// Implementations must be safe for concurrent use and return copies that
// callers may mutate.
type CommandCatalog interface {
	// ListCommands returns one entry per canonical command.
	ListCommands(ctx context.Context) ([]RegisteredCommand, error)
}

// FindCommand looks up a command by canonical name or alias. A leading
// command prefix in name is ignored, so "/addrequest" finds the entry that
// declares that alias.
func FindCommand(commands []RegisteredCommand, name string) (RegisteredCommand, bool) {
	name = normalizeCommandName(name)
	for _, prefix := range []CommandPrefix{CommandPrefixSystem, CommandPrefixOrdinary} {
		if trimmed, ok := strings.CutPrefix(name, string(prefix)); ok {
			name = trimmed
			break
		}
	}
	if name == "" {
		return RegisteredCommand{}, false
	}

	index := slices.IndexFunc(commands, func(entry RegisteredCommand) bool {
		return slices.Contains(entry.Command.Names(), name)
	})
	if index < 0 {
		return RegisteredCommand{}, false
	}

	return commands[index], true
}

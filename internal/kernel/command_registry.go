package kernel

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"ex-otogi-trade/pkg/otogi"
)

// commandKey is one invocable name under one prefix. Names are matched
// case-insensitively, so keys always hold the lowercased name.
type commandKey struct {
	prefix otogi.CommandPrefix
	name   string
}

func keyOf(prefix otogi.CommandPrefix, name string) commandKey {
	return commandKey{prefix: prefix, name: normalizeCommandName(name)}
}

// String renders the key the way members type it, for example "/addwant".
func (k commandKey) String() string {
	return string(k.prefix) + k.name
}

func compareCommandKeys(left, right commandKey) int {
	return cmp.Compare(left.String(), right.String())
}

// commandRegistration is stored once per name, aliases included.
type commandRegistration struct {
	moduleName string
	spec       otogi.CommandSpec
}

// canonical reports whether key is the registration's primary name rather
// than one of its aliases.
func (r commandRegistration) canonical(key commandKey) bool {
	return key == keyOf(r.spec.Prefix, r.spec.Name)
}

// registerModuleCommands claims every name and alias of commands for
// moduleName. Specs have already passed validateModuleSpec. Nothing is
// claimed when any name is owned by another module.
func (k *Kernel) registerModuleCommands(moduleName string, commands []otogi.CommandSpec) error {
	claims := make(map[commandKey]otogi.CommandSpec)
	for _, command := range commands {
		command = normalizeCommandSpec(command)
		for _, name := range command.Names() {
			claims[keyOf(command.Prefix, name)] = command
		}
	}
	if len(claims) == 0 {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	var conflicts []error
	for _, key := range sortedKeys(claims) {
		if owner, taken := k.commands[key]; taken {
			conflicts = append(conflicts, fmt.Errorf("command %s already registered by module %s", key, owner.moduleName))
		}
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("register commands for module %s: %w", moduleName, errors.Join(conflicts...))
	}

	for key, spec := range claims {
		k.commands[key] = commandRegistration{moduleName: moduleName, spec: spec}
	}

	return nil
}

func (k *Kernel) unregisterModuleCommands(moduleName string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for key, registration := range k.commands {
		if registration.moduleName == moduleName {
			delete(k.commands, key)
		}
	}
}

// lookupCommand finds the spec registered under prefix and name or alias.
func (k *Kernel) lookupCommand(prefix otogi.CommandPrefix, name string) (otogi.CommandSpec, bool) {
	k.mu.RLock()
	registration, found := k.commands[keyOf(prefix, name)]
	k.mu.RUnlock()

	if !found {
		return otogi.CommandSpec{}, false
	}

	return normalizeCommandSpec(registration.spec), true
}

// registeredCommands lists one entry per command, skipping alias entries,
// ordered by command key then module.
func (k *Kernel) registeredCommands() []otogi.RegisteredCommand {
	k.mu.RLock()
	listed := make([]otogi.RegisteredCommand, 0, len(k.commands))
	for key, registration := range k.commands {
		if registration.canonical(key) {
			listed = append(listed, otogi.RegisteredCommand{
				ModuleName: registration.moduleName,
				Command:    normalizeCommandSpec(registration.spec),
			})
		}
	}
	k.mu.RUnlock()

	slices.SortFunc(listed, func(left, right otogi.RegisteredCommand) int {
		return cmp.Or(
			compareCommandKeys(
				keyOf(left.Command.Prefix, left.Command.Name),
				keyOf(right.Command.Prefix, right.Command.Name),
			),
			cmp.Compare(left.ModuleName, right.ModuleName),
		)
	})

	return listed
}

func sortedKeys[V any](claims map[commandKey]V) []commandKey {
	keys := make([]commandKey, 0, len(claims))
	for key := range claims {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, compareCommandKeys)

	return keys
}

func normalizeCommandName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// normalizeCommandSpec returns a lowercased deep copy of spec.
func normalizeCommandSpec(spec otogi.CommandSpec) otogi.CommandSpec {
	spec.Name = normalizeCommandName(spec.Name)
	aliases := make([]string, len(spec.Aliases))
	for index, alias := range spec.Aliases {
		aliases[index] = normalizeCommandName(alias)
	}
	spec.Aliases = aliases

	options := slices.Clone(spec.Options)
	for index := range options {
		options[index].Name = normalizeCommandName(options[index].Name)
		options[index].Alias = normalizeCommandName(options[index].Alias)
	}
	spec.Options = options

	return spec
}

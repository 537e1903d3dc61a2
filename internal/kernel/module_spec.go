package kernel

import (
	"fmt"

	"ex-otogi-trade/pkg/otogi"
)

// claimSet records names already taken inside one module spec.
type claimSet[K comparable] map[K]struct{}

// claim reports false when key was claimed before.
func (s claimSet[K]) claim(key K) bool {
	if _, taken := s[key]; taken {
		return false
	}
	s[key] = struct{}{}

	return true
}

// validateModuleSpec checks names inside one spec are present and unique.
// Conflicts with other modules are detected later, under the kernel lock.
func validateModuleSpec(spec otogi.ModuleSpec) error {
	capabilities := claimSet[string]{}
	subscriptions := claimSet[string]{}

	for index, handler := range spec.Handlers {
		if err := checkCapabilityName(capabilities, handler.Capability.Name); err != nil {
			return fmt.Errorf("module handler %d: %w", index, err)
		}
		if handler.Handler == nil {
			return fmt.Errorf("module handler %d: nil handler", index)
		}
		if name := handler.Subscription.Name; name != "" && !subscriptions.claim(name) {
			return fmt.Errorf("module handler %d: duplicate subscription name %s", index, name)
		}
	}
	for index, capability := range spec.AdditionalCapabilities {
		if err := checkCapabilityName(capabilities, capability.Name); err != nil {
			return fmt.Errorf("module capability %d: %w", index, err)
		}
	}

	commands := claimSet[commandKey]{}
	for index, command := range spec.Commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("module command %d: %w", index, err)
		}
		for _, name := range command.Names() {
			if key := keyOf(command.Prefix, name); !commands.claim(key) {
				return fmt.Errorf("module command %d: duplicate command %s", index, key)
			}
		}
	}

	return nil
}

func checkCapabilityName(claimed claimSet[string], name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty capability name")
	case !claimed.claim(name):
		return fmt.Errorf("duplicate capability name %s", name)
	}

	return nil
}

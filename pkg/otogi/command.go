package otogi

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// CommandPrefix is the leading character that marks text as a command.
type CommandPrefix string

const (
	// CommandPrefixOrdinary introduces member commands such as /addwant.
	CommandPrefixOrdinary CommandPrefix = "/"
	// CommandPrefixSystem introduces operator commands such as ~sweep.
	CommandPrefixSystem CommandPrefix = "~"
)

// Validate rejects prefixes other than the two known ones.
func (p CommandPrefix) Validate() error {
	if p != CommandPrefixOrdinary && p != CommandPrefixSystem {
		return fmt.Errorf("validate command prefix: unsupported prefix %q", p)
	}

	return nil
}

// CommandCandidate is command-looking text split into header and tokens,
// before it is bound to a registered spec.
type CommandCandidate struct {
	Prefix CommandPrefix
	// Name is lowercased and excludes the prefix and any @mention.
	Name string
	// Mention is the bot name after '@' in "/name@bot".
	Mention  string
	RawInput string
	// Tokens are the whitespace separated fields after the header.
	Tokens []string
}

// CommandOption is one option found in a bound invocation.
type CommandOption struct {
	Name     string
	Alias    string
	Value    string
	HasValue bool
}

// CommandInvocation is a command bound to its spec.
type CommandInvocation struct {
	// Name is the canonical command name, even when invoked through an alias.
	Name string
	// InvokedAs is the name the author typed.
	InvokedAs string
	Mention   string
	// Value is every non-option token joined by single spaces.
	Value   string
	Options []CommandOption

	SourceEventID   string
	SourceEventKind EventKind
	RawInput        string
}

// Validate checks the fields every derived command event carries.
func (c *CommandInvocation) Validate() error {
	switch {
	case c == nil:
		return fmt.Errorf("validate command invocation: nil invocation")
	case normalizeCommandName(c.Name) == "":
		return fmt.Errorf("validate command invocation: missing name")
	case c.SourceEventID == "":
		return fmt.Errorf("validate command invocation: missing source_event_id")
	case c.SourceEventKind == "":
		return fmt.Errorf("validate command invocation: missing source_event_kind")
	}

	return nil
}

// Option looks up a parsed option by its long name.
func (c *CommandInvocation) Option(name string) (CommandOption, bool) {
	if c == nil {
		return CommandOption{}, false
	}
	name = normalizeCommandName(name)
	index := slices.IndexFunc(c.Options, func(option CommandOption) bool {
		return option.Name == name
	})
	if index < 0 {
		return CommandOption{}, false
	}

	return c.Options[index], true
}

// CommandOptionSpec declares an option as `--name` and/or `-a`.
type CommandOptionSpec struct {
	Name  string
	Alias string
	// HasValue makes the option consume the next token.
	HasValue    bool
	Required    bool
	Description string
}

// keys returns the option's spellings as typed: "--name", "-a", or both.
func (s CommandOptionSpec) keys() []string {
	var keys []string
	if name := normalizeCommandName(s.Name); name != "" {
		keys = append(keys, "--"+name)
	}
	if alias := normalizeCommandName(s.Alias); alias != "" {
		keys = append(keys, "-"+alias)
	}

	return keys
}

// Validate requires a name or a one-letter alias.
func (s CommandOptionSpec) Validate() error {
	name := normalizeCommandName(s.Name)
	alias := normalizeCommandName(s.Alias)

	switch {
	case name == "" && alias == "":
		return fmt.Errorf("validate command option spec: missing name and alias")
	case alias != "" && (len(alias) != 1 || !unicode.IsLetter(rune(alias[0]))):
		return fmt.Errorf("validate command option spec: alias %q must be one letter", s.Alias)
	case strings.ContainsAny(name, " \t\r\n"):
		return fmt.Errorf("validate command option spec: name %q contains whitespace", s.Name)
	}

	return nil
}

// CommandSpec declares one command a module handles.
type CommandSpec struct {
	Prefix CommandPrefix
	// Name is the canonical name. Delivered invocations always carry it.
	Name    string
	Aliases []string
	// Usage describes the positional value, for example "<item numbers>".
	Usage       string
	Description string
	Options     []CommandOptionSpec
}

// Names returns the canonical name followed by every alias, normalized.
func (s CommandSpec) Names() []string {
	names := make([]string, 0, len(s.Aliases)+1)
	names = append(names, normalizeCommandName(s.Name))
	for _, alias := range s.Aliases {
		names = append(names, normalizeCommandName(alias))
	}

	return names
}

// Validate checks the prefix, that names and aliases are distinct and
// well-formed, and that no two options share a spelling.
func (s CommandSpec) Validate() error {
	if err := s.Prefix.Validate(); err != nil {
		return fmt.Errorf("validate command spec %q: %w", s.Name, err)
	}
	if err := s.validateNames(); err != nil {
		return fmt.Errorf("validate command spec %q: %w", s.Name, err)
	}
	if err := s.validateOptions(); err != nil {
		return fmt.Errorf("validate command spec %s: %w", s.Name, err)
	}

	return nil
}

func (s CommandSpec) validateNames() error {
	seen := make(map[string]bool, len(s.Aliases)+1)
	for _, name := range s.Names() {
		switch {
		case name == "":
			return fmt.Errorf("empty name or alias")
		case strings.ContainsAny(name, " \t\r\n@"):
			return fmt.Errorf("invalid name %q", name)
		case seen[name]:
			return fmt.Errorf("duplicate name %q", name)
		}
		seen[name] = true
	}

	return nil
}

func (s CommandSpec) validateOptions() error {
	seen := make(map[string]bool, len(s.Options)*2)
	for index, option := range s.Options {
		if err := option.Validate(); err != nil {
			return fmt.Errorf("option[%d]: %w", index, err)
		}
		for _, key := range option.keys() {
			if seen[key] {
				return fmt.Errorf("duplicate option %s", key)
			}
			seen[key] = true
		}
	}

	return nil
}

// CommandUsage renders spec as one line, for example
// "/mylists [--kind <value>] <item numbers>".
func CommandUsage(spec CommandSpec) string {
	var usage strings.Builder
	usage.WriteString(string(spec.Prefix) + normalizeCommandName(spec.Name))
	for _, option := range spec.Options {
		descriptor := optionUsage(option)
		if option.HasValue {
			descriptor += " <value>"
		}
		if !option.Required {
			descriptor = "[" + descriptor + "]"
		}
		usage.WriteString(" " + descriptor)
	}
	if positional := strings.TrimSpace(spec.Usage); positional != "" {
		usage.WriteString(" " + positional)
	}

	return usage.String()
}

func normalizeCommandName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

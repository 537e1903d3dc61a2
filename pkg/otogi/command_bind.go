package otogi

import (
	"fmt"
	"strings"
	"unicode"
)

// ParseCommandCandidate splits text into a command header and tokens.
//
// matched is false when text does not start with a command prefix. A
// matched candidate may still carry a syntax error, for example "/" alone
// or a "--name=value" token.
func ParseCommandCandidate(text string) (candidate CommandCandidate, matched bool, err error) {
	candidate.RawInput = text

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return candidate, false, nil
	}
	header, tokens := fields[0], fields[1:]

	prefix := CommandPrefix(header[:1])
	if prefix.Validate() != nil {
		return candidate, false, nil
	}
	candidate.Prefix = prefix

	name, mention, _ := strings.Cut(header[1:], "@")
	candidate.Name = normalizeCommandName(name)
	candidate.Mention = strings.TrimSpace(mention)
	if candidate.Name == "" {
		return candidate, true, fmt.Errorf("parse command candidate: missing command name")
	}
	if len(tokens) > 0 {
		candidate.Tokens = append([]string(nil), tokens...)
	}

	for _, token := range candidate.Tokens {
		if strings.HasPrefix(token, "--") && strings.Contains(token, "=") {
			return candidate, true, fmt.Errorf("parse command candidate: unsupported option format %q", token)
		}
	}

	return candidate, true, nil
}

// BindCommand checks candidate against spec and builds the invocation
// delivered to the owning module. sourceEvent is the article the command
// was parsed from.
func BindCommand(candidate CommandCandidate, spec CommandSpec, sourceEvent *Event) (CommandInvocation, error) {
	if sourceEvent == nil {
		return CommandInvocation{}, fmt.Errorf("bind command: nil source event")
	}
	if err := spec.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: %w", spec.Name, err)
	}
	if candidate.Prefix != spec.Prefix {
		return CommandInvocation{}, fmt.Errorf(
			"bind command %s: prefix mismatch, got %q want %q",
			spec.Name, candidate.Prefix, spec.Prefix,
		)
	}
	invokedAs := normalizeCommandName(candidate.Name)
	if !containsCommandName(spec.Names(), invokedAs) {
		return CommandInvocation{}, fmt.Errorf("bind command %s: name mismatch, got %q", spec.Name, candidate.Name)
	}

	options, values, err := newOptionBinder(spec).bind(candidate.Tokens)
	if err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: %w", spec.Name, err)
	}

	invocation := CommandInvocation{
		Name:            normalizeCommandName(spec.Name),
		InvokedAs:       invokedAs,
		Mention:         candidate.Mention,
		Value:           strings.Join(values, " "),
		Options:         options,
		SourceEventID:   sourceEvent.ID,
		SourceEventKind: sourceEvent.Kind,
		RawInput:        candidate.RawInput,
	}
	if err := invocation.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: %w", spec.Name, err)
	}

	return invocation, nil
}

// optionBinder separates declared options from positional values.
type optionBinder struct {
	specs    []CommandOptionSpec
	byKey    map[string]CommandOptionSpec
	required map[string]bool
}

func newOptionBinder(spec CommandSpec) optionBinder {
	binder := optionBinder{
		specs:    spec.Options,
		byKey:    make(map[string]CommandOptionSpec, len(spec.Options)*2),
		required: make(map[string]bool),
	}
	for _, option := range spec.Options {
		for _, key := range option.keys() {
			binder.byKey[key] = option
		}
	}

	return binder
}

func (b optionBinder) bind(tokens []string) ([]CommandOption, []string, error) {
	options := make([]CommandOption, 0, len(tokens))
	values := make([]string, 0, len(tokens))

	for index := 0; index < len(tokens); index++ {
		key, isOption := optionKey(tokens[index])
		if !isOption {
			values = append(values, tokens[index])
			continue
		}
		spec, declared := b.byKey[key]
		if !declared {
			return nil, nil, fmt.Errorf("unknown option %s", key)
		}

		option := CommandOption{Name: normalizeCommandName(spec.Name), Alias: normalizeCommandName(spec.Alias)}
		if spec.HasValue {
			next := index + 1
			if next >= len(tokens) {
				return nil, nil, fmt.Errorf("option %s requires a value", key)
			}
			if _, nextIsOption := optionKey(tokens[next]); nextIsOption {
				return nil, nil, fmt.Errorf("option %s requires a value", key)
			}
			option.Value, option.HasValue = tokens[next], true
			index = next
		}
		options = append(options, option)
		b.required[optionUsage(spec)] = true
	}

	for _, spec := range b.specs {
		if spec.Required && !b.required[optionUsage(spec)] {
			return nil, nil, fmt.Errorf("missing required option %s", optionUsage(spec))
		}
	}

	return options, values, nil
}

// optionKey recognizes "--name" and "-a" tokens. Negative numbers and bare
// dashes are values.
func optionKey(token string) (string, bool) {
	if name, long := strings.CutPrefix(token, "--"); long {
		name = normalizeCommandName(name)
		if name == "" || strings.Contains(name, "=") {
			return "", false
		}
		return "--" + name, true
	}
	if len(token) == 2 && token[0] == '-' && unicode.IsLetter(rune(token[1])) {
		return "-" + normalizeCommandName(token[1:]), true
	}

	return "", false
}

// optionUsage is the spelling shown in usage text, preferring the long name.
func optionUsage(option CommandOptionSpec) string {
	if keys := option.keys(); len(keys) > 0 {
		return keys[0]
	}

	return "-"
}

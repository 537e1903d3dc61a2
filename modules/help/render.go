package help

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"ex-otogi-trade/pkg/otogi"
)

const unknownModule = "unknown"

// commandSheet is the normalized view of one registered command.
type commandSheet struct {
	module      string
	label       string
	usage       string
	aliases     []string
	description string
}

func newCommandSheet(entry otogi.RegisteredCommand) commandSheet {
	command := entry.Command
	sheet := commandSheet{
		module:      cmp.Or(strings.TrimSpace(entry.ModuleName), unknownModule),
		label:       string(command.Prefix) + normalize(command.Name),
		description: strings.TrimSpace(command.Description),
	}

	var usage []string
	if len(command.Options) > 0 {
		usage = append(usage, optionsUsage(command.Options))
	}
	if hint := strings.TrimSpace(command.Usage); hint != "" {
		usage = append(usage, hint)
	}
	sheet.usage = strings.Join(usage, " ")

	for _, alias := range command.Aliases {
		if alias = normalize(alias); alias != "" {
			sheet.aliases = append(sheet.aliases, string(command.Prefix)+alias)
		}
	}
	slices.Sort(sheet.aliases)

	return sheet
}

// writeTo appends the usage line and the indented alias and description
// lines that are present.
func (s commandSheet) writeTo(out *strings.Builder) {
	out.WriteString(s.label)
	if s.usage != "" {
		out.WriteString(" " + s.usage)
	}
	if len(s.aliases) > 0 {
		out.WriteString("\n  aliases: " + strings.Join(s.aliases, ", "))
	}
	if s.description != "" {
		out.WriteString("\n  " + s.description)
	}
}

// renderHelp lists every command under its module heading, both sorted.
func renderHelp(commands []otogi.RegisteredCommand) string {
	var out strings.Builder
	out.WriteString("Available commands:")
	if len(commands) == 0 {
		out.WriteString("\n(none)")
		return out.String()
	}

	sheets := make([]commandSheet, 0, len(commands))
	for _, entry := range commands {
		sheets = append(sheets, newCommandSheet(entry))
	}
	slices.SortFunc(sheets, func(left, right commandSheet) int {
		return cmp.Or(cmp.Compare(left.module, right.module), cmp.Compare(left.label, right.label))
	})

	for index, sheet := range sheets {
		if index == 0 || sheets[index-1].module != sheet.module {
			fmt.Fprintf(&out, "\n\n[%s]", sheet.module)
		}
		out.WriteString("\n")
		sheet.writeTo(&out)
	}

	return out.String()
}

// renderCommandHelp describes the command matching query by name or alias,
// with or without its prefix.
func renderCommandHelp(commands []otogi.RegisteredCommand, query string) string {
	entry, found := otogi.FindCommand(commands, query)
	if !found {
		return fmt.Sprintf("Unknown command %q. Send /%s for the full list.", query, helpCommandName)
	}

	sheet := newCommandSheet(entry)
	var out strings.Builder
	sheet.writeTo(&out)
	out.WriteString("\n  provided by " + sheet.module)

	return out.String()
}

// optionsUsage renders options sorted by name then alias, for example
// "--kind|-k <value>, --member <value> (required)".
func optionsUsage(options []otogi.CommandOptionSpec) string {
	options = slices.Clone(options)
	slices.SortFunc(options, func(left, right otogi.CommandOptionSpec) int {
		return cmp.Or(cmp.Compare(normalize(left.Name), normalize(right.Name)), cmp.Compare(normalize(left.Alias), normalize(right.Alias)))
	})

	var rendered []string
	for _, option := range options {
		var spellings []string
		if name := normalize(option.Name); name != "" {
			spellings = append(spellings, "--"+name)
		}
		if alias := normalize(option.Alias); alias != "" {
			spellings = append(spellings, "-"+alias)
		}
		if len(spellings) == 0 {
			continue
		}

		descriptor := strings.Join(spellings, "|")
		if option.HasValue {
			descriptor += " <value>"
		}
		if option.Required {
			descriptor += " (required)"
		}
		rendered = append(rendered, descriptor)
	}
	if len(rendered) == 0 {
		return "(none)"
	}

	return strings.Join(rendered, ", ")
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

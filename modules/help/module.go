package help

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ex-otogi-trade/pkg/otogi"
)

const helpCommandName = "help"

// Module answers /help with every registered command grouped by module, and
// /help <command> with the entry of one command or alias.
type Module struct {
	dispatcher otogi.SinkDispatcher
	catalog    otogi.CommandCatalog
	logger     *slog.Logger
}

// New returns an unwired help module.
func New() *Module {
	return &Module{}
}

// Name implements otogi.Module.
func (m *Module) Name() string {
	return "help"
}

// Spec declares the /help command and its handler.
func (m *Module) Spec() otogi.ModuleSpec {
	return otogi.ModuleSpec{
		Handlers: []otogi.ModuleHandler{{
			Capability: otogi.Capability{
				Name:        "help-command-handler",
				Description: "renders registered command help for /help",
				Interest: otogi.InterestSet{
					Kinds:          []otogi.EventKind{otogi.EventKindCommandReceived},
					RequireCommand: true,
					CommandNames:   []string{helpCommandName},
					RequireArticle: true,
				},
				RequiredServices: []string{otogi.ServiceSinkDispatcher, otogi.ServiceCommandCatalog},
			},
			Subscription: otogi.NewDefaultSubscriptionSpec("help-commands"),
			Handler:      m.handleCommand,
		}},
		Commands: []otogi.CommandSpec{{
			Prefix:      otogi.CommandPrefixOrdinary,
			Name:        helpCommandName,
			Usage:       "[command]",
			Description: "show all available commands, or one command in detail",
		}},
	}
}

// OnRegister resolves the dispatcher and the command catalog.
func (m *Module) OnRegister(_ context.Context, runtime otogi.ModuleRuntime) error {
	services := runtime.Services()

	var err error
	if m.dispatcher, err = otogi.ResolveAs[otogi.SinkDispatcher](services, otogi.ServiceSinkDispatcher); err != nil {
		return fmt.Errorf("help resolve outbound dispatcher: %w", err)
	}
	if m.catalog, err = otogi.ResolveAs[otogi.CommandCatalog](services, otogi.ServiceCommandCatalog); err != nil {
		return fmt.Errorf("help resolve command catalog: %w", err)
	}
	m.logger = otogi.ResolveLogger(services, m.Name())

	return nil
}

func (m *Module) OnStart(context.Context) error { return nil }

func (m *Module) OnShutdown(context.Context) error { return nil }

func (m *Module) handleCommand(ctx context.Context, event *otogi.Event) error {
	if event == nil || event.Article == nil || event.Command == nil ||
		event.Kind != otogi.EventKindCommandReceived || event.Command.Name != helpCommandName {
		return nil
	}
	if m.dispatcher == nil || m.catalog == nil {
		return fmt.Errorf("help handle command: module not registered")
	}

	commands, err := m.catalog.ListCommands(ctx)
	if err != nil {
		return fmt.Errorf("help list commands: %w", err)
	}
	text := renderHelp(commands)
	if query := strings.TrimSpace(event.Command.Value); query != "" {
		text = renderCommandHelp(commands, query)
		if m.logger != nil {
			m.logger.DebugContext(ctx, "help lookup", "query", query)
		}
	}

	target, err := otogi.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("help derive outbound target: %w", err)
	}
	_, err = m.dispatcher.SendMessage(ctx, otogi.SendMessageRequest{
		Target:           target,
		Text:             text,
		ReplyToMessageID: event.Article.ID,
	})
	if err != nil {
		return fmt.Errorf("help send reply: %w", err)
	}

	return nil
}

var (
	_ otogi.Module          = (*Module)(nil)
	_ otogi.ModuleRegistrar = (*Module)(nil)
)

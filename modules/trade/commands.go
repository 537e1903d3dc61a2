package trade

import (
	"context"
	"fmt"
	"strings"

	tradecore "ex-otogi-trade/internal/trade"
	"ex-otogi-trade/pkg/otogi"
)

// listCommand binds one mutation command to its list and channel.
type listCommand struct {
	kind    tradecore.Kind
	add     bool
	channel func(Channels) string
}

var listCommands = map[string]listCommand{
	commandAddWant: {
		kind:    tradecore.KindWant,
		add:     true,
		channel: func(c Channels) string { return c.Want },
	},
	commandAddHave: {
		kind:    tradecore.KindHave,
		add:     true,
		channel: func(c Channels) string { return c.Have },
	},
	commandRemoveWant: {
		kind:    tradecore.KindWant,
		channel: func(c Channels) string { return c.Manage },
	},
	commandRemoveHave: {
		kind:    tradecore.KindHave,
		channel: func(c Channels) string { return c.Manage },
	},
}

func (m *Module) handleCommand(ctx context.Context, event *otogi.Event) error {
	if event == nil || event.Command == nil || event.Article == nil {
		return nil
	}
	if event.Kind != otogi.EventKindCommandReceived {
		return nil
	}
	if m.dispatcher == nil {
		return fmt.Errorf("trade handle command: outbound dispatcher not configured")
	}
	m.members.remember(event)

	name := event.Command.Name
	switch name {
	case commandCatalog:
		return m.reply(ctx, event, renderCatalog(m.catalog))
	case commandMyLists:
		return m.handleMyLists(ctx, event)
	}

	command, ok := listCommands[name]
	if !ok {
		return nil
	}

	return m.handleListCommand(ctx, event, command)
}

func (m *Module) handleListCommand(ctx context.Context, event *otogi.Event, command listCommand) error {
	if !allowedIn(command.channel(m.cfg.Channels), event) {
		return m.reply(ctx, event, textWrongChannel)
	}
	memberID := strings.TrimSpace(event.Actor.ID)
	if memberID == "" {
		return m.reply(ctx, event, textNoMember)
	}

	items := m.catalog.ParseItems(event.Command.Value)
	if len(items) == 0 {
		return m.reply(ctx, event, textNoValidItems)
	}

	var (
		text    string
		changed bool
	)
	if command.add {
		result, err := m.store.AddItems(ctx, memberID, command.kind, items)
		if err != nil {
			return fmt.Errorf("trade add %s items for %s: %w", command.kind, memberID, err)
		}
		text = renderAddResult(result)
		changed = len(result.Added) > 0
	} else {
		result, err := m.store.RemoveItems(ctx, memberID, command.kind, items)
		if err != nil {
			return fmt.Errorf("trade remove %s items for %s: %w", command.kind, memberID, err)
		}
		text = renderRemoveResult(result)
		changed = len(result.Removed) > 0
	}

	if changed {
		m.triggerSweep(event.Command.Name)
	}

	return m.reply(ctx, event, text)
}

func (m *Module) handleMyLists(ctx context.Context, event *otogi.Event) error {
	if !allowedIn(m.cfg.Channels.Manage, event) {
		return m.reply(ctx, event, textManageChannelOnly)
	}
	memberID := strings.TrimSpace(event.Actor.ID)
	if memberID == "" {
		return m.reply(ctx, event, textNoMember)
	}

	list, err := m.store.MemberList(ctx, memberID)
	if err != nil {
		return fmt.Errorf("trade load lists for %s: %w", memberID, err)
	}

	return m.reply(ctx, event, renderMemberList(m.catalog, list))
}

func (m *Module) reply(ctx context.Context, event *otogi.Event, text string) error {
	target, err := otogi.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("trade derive outbound target: %w", err)
	}
	_, err = m.dispatcher.SendMessage(ctx, otogi.SendMessageRequest{
		Target:             target,
		Text:               text,
		ReplyToMessageID:   event.Article.ID,
		DisableLinkPreview: true,
	})
	if err != nil {
		return fmt.Errorf("trade send reply: %w", err)
	}

	return nil
}

// allowedIn reports whether event happened in channel; an empty channel allows all.
func allowedIn(channel string, event *otogi.Event) bool {
	return channel == "" || event.Conversation.ID == channel
}

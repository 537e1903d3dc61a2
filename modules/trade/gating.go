package trade

import (
	"context"

	"ex-otogi-trade/pkg/otogi"
)

// handleArticle removes plain articles from the want and have channels and
// tells the author privately. Delivery failures are logged, never returned.
func (m *Module) handleArticle(ctx context.Context, event *otogi.Event) error {
	if event == nil || event.Article == nil || event.Kind != otogi.EventKindArticleCreated {
		return nil
	}
	m.members.remember(event)
	if !m.cfg.DeleteNonCommands || event.Actor.IsBot || event.Actor.ID == "" {
		return nil
	}
	if !m.isGatedConversation(event.Conversation.ID) {
		return nil
	}
	if _, matched, _ := otogi.ParseCommandCandidate(event.Article.Text); matched {
		return nil
	}
	if m.dispatcher == nil {
		return nil
	}

	target, err := otogi.OutboundTargetFromEvent(event)
	if err != nil {
		m.logger.WarnContext(ctx, "trade gate derive target failed",
			"conversation_id", event.Conversation.ID,
			"error", err,
		)
		return nil
	}
	if err := m.dispatcher.DeleteMessage(ctx, otogi.DeleteMessageRequest{
		Target:    target,
		MessageID: event.Article.ID,
		Revoke:    true,
	}); err != nil {
		logDeliveryFailure(ctx, m.logger, "trade gate delete failed", err,
			"conversation_id", event.Conversation.ID,
			"member", event.Actor.ID,
		)
	}

	_, err = m.dispatcher.SendMessage(ctx, otogi.SendMessageRequest{
		Target: m.members.privateTarget(event.Actor.ID),
		Text:   renderGatingNotice(event.Conversation.Title),
	})
	if err != nil {
		logDeliveryFailure(ctx, m.logger, "trade gate notice failed", err,
			"member", event.Actor.ID,
		)
	}

	return nil
}

func (m *Module) isGatedConversation(conversationID string) bool {
	if conversationID == "" {
		return false
	}

	return conversationID == m.cfg.Channels.Want || conversationID == m.cfg.Channels.Have
}

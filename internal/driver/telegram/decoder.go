package telegram

import (
	"context"
	"fmt"
	"maps"
	"time"

	"ex-otogi-trade/pkg/otogi"
)

// Decoder converts Telegram update DTOs into neutral otogi events.
type Decoder interface {
	// Decode maps one adapter update into a validated neutral event envelope.
	Decode(ctx context.Context, update Update) (*otogi.Event, error)
}

// DefaultDecoder provides default Telegram-to-otogi mappings.
type DefaultDecoder struct{}

// NewDefaultDecoder creates a default decoder.
func NewDefaultDecoder() DefaultDecoder {
	return DefaultDecoder{}
}

// Decode converts a Telegram message update into an article.created event.
func (d DefaultDecoder) Decode(_ context.Context, update Update) (*otogi.Event, error) {
	if update.Message == nil {
		return nil, fmt.Errorf("decode update %s: missing message payload", update.ID)
	}

	occurredAt := update.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	event := &otogi.Event{
		ID:         update.ID,
		Kind:       otogi.EventKindArticleCreated,
		OccurredAt: occurredAt,
		Conversation: otogi.Conversation{
			ID:    update.Chat.ID,
			Type:  update.Chat.Type,
			Title: update.Chat.Title,
		},
		Actor: otogi.Actor{
			ID:          update.Actor.ID,
			Username:    update.Actor.Username,
			DisplayName: update.Actor.DisplayName,
			IsBot:       update.Actor.IsBot,
		},
		Article: &otogi.Article{
			ID:               update.Message.ID,
			ReplyToArticleID: update.Message.ReplyToID,
			Text:             update.Message.Text,
		},
		Metadata: maps.Clone(update.Metadata),
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("decode update %s: %w", update.ID, err)
	}

	return event, nil
}

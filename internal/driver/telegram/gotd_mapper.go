package telegram

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gotd/td/tg"
)

// DefaultGotdUpdateMapper turns incoming gotd messages into driver updates.
type DefaultGotdUpdateMapper struct {
	peerCache *PeerCache
}

// GotdUpdateMapperOption configures a DefaultGotdUpdateMapper.
type GotdUpdateMapperOption func(*DefaultGotdUpdateMapper)

// WithPeerCache makes the mapper record every peer it sees, so replies and
// private notices can be addressed later.
func WithPeerCache(cache *PeerCache) GotdUpdateMapperOption {
	return func(mapper *DefaultGotdUpdateMapper) {
		if cache != nil {
			mapper.peerCache = cache
		}
	}
}

// NewDefaultGotdUpdateMapper builds a mapper from options.
func NewDefaultGotdUpdateMapper(options ...GotdUpdateMapperOption) DefaultGotdUpdateMapper {
	var mapper DefaultGotdUpdateMapper
	for _, option := range options {
		option(&mapper)
	}

	return mapper
}

// Map converts one envelope. Only new incoming messages are accepted; the
// entities of skipped envelopes still reach the peer cache.
func (m DefaultGotdUpdateMapper) Map(ctx context.Context, envelope gotdUpdateEnvelope) (Update, bool, error) {
	if err := ctx.Err(); err != nil {
		return Update{}, false, fmt.Errorf("map gotd update context: %w", err)
	}
	if envelope.update == nil {
		return Update{}, false, fmt.Errorf("map gotd update: nil update")
	}
	m.peerCache.RememberEnvelope(envelope)

	message := incomingMessage(envelope.update)
	if message == nil {
		return Update{}, false, nil
	}

	return m.messageUpdate(message, envelope), true, nil
}

// incomingMessage unwraps new-message updates, ignoring service messages and
// the bot's own posts.
func incomingMessage(update tg.UpdateClass) *tg.Message {
	var raw tg.MessageClass
	switch typed := update.(type) {
	case *tg.UpdateNewMessage:
		raw = typed.Message
	case *tg.UpdateNewChannelMessage:
		raw = typed.Message
	}

	message, ok := raw.(*tg.Message)
	if !ok || message == nil || message.Out {
		return nil
	}

	return message
}

func (m DefaultGotdUpdateMapper) messageUpdate(message *tg.Message, envelope gotdUpdateEnvelope) Update {
	chat := envelope.chatRef(message.PeerID)
	actor := envelope.actorRef(message.FromID)
	if actor.ID == unknownPeerID {
		actor = envelope.actorRef(message.PeerID)
	}
	m.peerCache.RememberConversation(chat, envelope.inputPeer(message.PeerID))

	occurredAt := intToTimeUTC(message.Date)
	if occurredAt.IsZero() {
		occurredAt = envelope.occurredAt
	}
	messageID := strconv.Itoa(message.ID)

	return Update{
		ID:         "tg:message:" + chat.ID + ":" + messageID,
		OccurredAt: occurredAt,
		Chat:       chat,
		Actor:      actor,
		Message: &MessagePayload{
			ID:        messageID,
			Text:      message.Message,
			ReplyToID: replyToMessageID(message),
		},
		Metadata: envelope.metadata(),
	}
}

func replyToMessageID(message *tg.Message) string {
	replyTo, ok := message.GetReplyTo()
	if !ok {
		return ""
	}
	header, ok := replyTo.(*tg.MessageReplyHeader)
	if !ok {
		return ""
	}
	id, ok := header.GetReplyToMsgID()
	if !ok {
		return ""
	}

	return strconv.Itoa(id)
}

package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
)

const defaultGotdUpdateBuffer = 1024

// GotdUpdateChannel receives gotd update containers as the client's update
// handler and feeds their flattened envelopes to the source.
type GotdUpdateChannel struct {
	updates chan gotdUpdateEnvelope
}

// NewGotdUpdateChannel buffers up to buffer envelopes; non-positive values
// use the default.
func NewGotdUpdateChannel(buffer int) *GotdUpdateChannel {
	if buffer <= 0 {
		buffer = defaultGotdUpdateBuffer
	}

	return &GotdUpdateChannel{updates: make(chan gotdUpdateEnvelope, buffer)}
}

// Updates returns the envelope stream.
func (s *GotdUpdateChannel) Updates(_ context.Context) (<-chan gotdUpdateEnvelope, error) {
	if s == nil || s.updates == nil {
		return nil, fmt.Errorf("gotd update channel: not initialized")
	}

	return s.updates, nil
}

// Handle implements the gotd update handler. It blocks while the stream is
// full, until ctx ends.
func (s *GotdUpdateChannel) Handle(ctx context.Context, updates tg.UpdatesClass) error {
	batch, err := flattenGotdUpdates(updates)
	if err != nil {
		return fmt.Errorf("handle gotd updates: %w", err)
	}

	for _, envelope := range batch {
		select {
		case s.updates <- envelope:
		case <-ctx.Done():
			return fmt.Errorf("handle gotd updates publish: %w", ctx.Err())
		}
	}

	return nil
}

// flattenGotdUpdates splits a container into envelopes. Short message forms
// are expanded into full new-message updates so the mapper sees one shape.
func flattenGotdUpdates(updates tg.UpdatesClass) ([]gotdUpdateEnvelope, error) {
	if updates == nil {
		return nil, fmt.Errorf("flatten gotd updates: nil updates")
	}

	switch typed := updates.(type) {
	case *tg.Updates:
		return envelopeBatch(typed.Updates, typed.Date, typed.Users, typed.Chats), nil
	case *tg.UpdatesCombined:
		return envelopeBatch(typed.Updates, typed.Date, typed.Users, typed.Chats), nil
	case *tg.UpdateShort:
		return envelopeBatch([]tg.UpdateClass{typed.Update}, typed.Date, nil, nil), nil
	case *tg.UpdateShortMessage:
		short := shortMessage{
			id: typed.ID, out: typed.Out, date: typed.Date, text: typed.Message,
			pts: typed.Pts, ptsCount: typed.PtsCount,
			peer: &tg.PeerUser{UserID: typed.UserID}, from: typed.UserID,
		}
		short.replyTo, _ = typed.GetReplyTo()
		return []gotdUpdateEnvelope{short.envelope(typed.TypeName())}, nil
	case *tg.UpdateShortChatMessage:
		short := shortMessage{
			id: typed.ID, out: typed.Out, date: typed.Date, text: typed.Message,
			pts: typed.Pts, ptsCount: typed.PtsCount,
			peer: &tg.PeerChat{ChatID: typed.ChatID}, from: typed.FromID,
		}
		short.replyTo, _ = typed.GetReplyTo()
		return []gotdUpdateEnvelope{short.envelope(typed.TypeName())}, nil
	case *tg.UpdatesTooLong, *tg.UpdateShortSentMessage:
		return nil, nil
	default:
		return nil, fmt.Errorf("flatten gotd updates %s: unsupported container", updates.TypeName())
	}
}

func envelopeBatch(updates []tg.UpdateClass, date int, users []tg.UserClass, chats []tg.ChatClass) []gotdUpdateEnvelope {
	shared := gotdUpdateEnvelope{
		occurredAt: intToTimeUTC(date),
		usersByID:  indexGotdUsers(users),
		chatsByID:  indexGotdChats(chats),
	}

	batch := make([]gotdUpdateEnvelope, 0, len(updates))
	for _, update := range updates {
		if update == nil {
			continue
		}
		envelope := shared
		envelope.update, envelope.updateClass = update, update.TypeName()
		batch = append(batch, envelope)
	}

	return batch
}

// shortMessage holds the fields shared by the compact message updates.
type shortMessage struct {
	id, date      int
	out           bool
	text          string
	pts, ptsCount int
	peer          tg.PeerClass
	from          int64
	replyTo       tg.MessageReplyHeaderClass
}

func (m shortMessage) envelope(class string) gotdUpdateEnvelope {
	message := &tg.Message{ID: m.id, Out: m.out, PeerID: m.peer, Date: m.date, Message: m.text}
	message.SetFromID(&tg.PeerUser{UserID: m.from})
	if m.replyTo != nil {
		message.SetReplyTo(m.replyTo)
	}

	return gotdUpdateEnvelope{
		update:      &tg.UpdateNewMessage{Message: message, Pts: m.pts, PtsCount: m.ptsCount},
		occurredAt:  intToTimeUTC(m.date),
		updateClass: class,
	}
}

func intToTimeUTC(unix int) time.Time {
	if unix <= 0 {
		return time.Time{}
	}

	return time.Unix(int64(unix), 0).UTC()
}

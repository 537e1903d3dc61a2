package otogi

import (
	"context"
	"fmt"
)

// SinkDispatcher delivers outbound operations to the driver that owns the
// target conversation.
type SinkDispatcher interface {
	// SendMessage posts a new text message.
	SendMessage(ctx context.Context, request SendMessageRequest) (*OutboundMessage, error)
	// DeleteMessage removes an existing message by ID.
	DeleteMessage(ctx context.Context, request DeleteMessageRequest) error
}

// OutboundTarget identifies where an outbound operation is delivered.
type OutboundTarget struct {
	Conversation Conversation
	// Sink pins the operation to one driver instance. Nil lets the
	// dispatcher pick any driver that can reach the conversation.
	Sink *EventSource
}

// Validate checks the identity fields used for routing.
func (t OutboundTarget) Validate() error {
	switch {
	case t.Conversation.ID == "":
		return fmt.Errorf("%w: missing conversation id", ErrInvalidOutboundRequest)
	case t.Conversation.Type == "":
		return fmt.Errorf("%w: missing conversation type", ErrInvalidOutboundRequest)
	case t.Sink != nil && t.Sink.IsZero():
		return fmt.Errorf("%w: missing sink identity", ErrInvalidOutboundRequest)
	}

	return nil
}

// DirectTarget addresses the private conversation with a user. A zero via
// leaves the sink open.
func DirectTarget(userID string, via EventSource) OutboundTarget {
	target := OutboundTarget{
		Conversation: Conversation{ID: userID, Type: ConversationTypePrivate},
	}
	if !via.IsZero() {
		target.Sink = &via
	}

	return target
}

// OutboundTargetFromEvent targets the conversation an event came from,
// pinned to the driver that produced it.
func OutboundTargetFromEvent(event *Event) (OutboundTarget, error) {
	if event == nil {
		return OutboundTarget{}, fmt.Errorf("%w: nil event", ErrInvalidOutboundRequest)
	}
	target := OutboundTarget{Conversation: event.Conversation}
	if !event.Source.IsZero() {
		source := event.Source
		target.Sink = &source
	}
	if err := target.Validate(); err != nil {
		return OutboundTarget{}, fmt.Errorf("derive target from event %s: %w", event.Kind, err)
	}

	return target, nil
}

// OutboundMessage identifies a message the dispatcher delivered.
type OutboundMessage struct {
	// ID is the platform message identifier.
	ID     string
	Target OutboundTarget
}

// SendMessageRequest describes a new outbound text message.
type SendMessageRequest struct {
	Target OutboundTarget
	Text   string
	// ReplyToMessageID optionally threads the message as a reply.
	ReplyToMessageID   string
	DisableLinkPreview bool
	// Silent suppresses recipient notifications where supported.
	Silent bool
}

// Validate checks the request before dispatch.
func (r SendMessageRequest) Validate() error {
	return validateRequest("send message", r.Target, "message text", r.Text)
}

// DeleteMessageRequest describes a message deletion.
type DeleteMessageRequest struct {
	Target    OutboundTarget
	MessageID string
	// Revoke deletes the message for every participant where supported.
	Revoke bool
}

// Validate checks the request before dispatch.
func (r DeleteMessageRequest) Validate() error {
	return validateRequest("delete message", r.Target, "message id", r.MessageID)
}

func validateRequest(operation string, target OutboundTarget, field string, value string) error {
	if err := target.Validate(); err != nil {
		return fmt.Errorf("validate %s target: %w", operation, err)
	}
	if value == "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidOutboundRequest, field)
	}

	return nil
}

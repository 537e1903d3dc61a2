package otogi

import (
	"fmt"
	"time"
)

// EventKind selects the payload an Event carries.
type EventKind string

const (
	// EventKindArticleCreated is a newly posted message.
	EventKindArticleCreated EventKind = "article.created"
	// EventKindCommandReceived is derived from an article starting with "/"
	// that names a registered command.
	EventKindCommandReceived EventKind = "command.received"
	// EventKindSystemCommandReceived is the "~" counterpart of
	// EventKindCommandReceived.
	EventKindSystemCommandReceived EventKind = "system_command.received"
)

// Platform names a chat network.
type Platform string

// PlatformTelegram is the only platform with a driver.
const PlatformTelegram Platform = "telegram"

// ConversationType is the scope of a conversation.
type ConversationType string

const (
	ConversationTypePrivate ConversationType = "private"
	ConversationTypeGroup   ConversationType = "group"
	ConversationTypeChannel ConversationType = "channel"
)

// EventSource names the driver instance an event came from. Outbound
// requests use the same value to pick the sink.
type EventSource struct {
	Platform Platform
	// ID is the driver's configured name.
	ID string
}

// IsZero reports whether neither field is set.
func (s EventSource) IsZero() bool {
	return s == EventSource{}
}

// Event is what drivers publish and module handlers receive.
type Event struct {
	// ID is stable across redelivery of the same platform message.
	ID         string
	Kind       EventKind
	OccurredAt time.Time
	Source     EventSource

	Conversation Conversation
	Actor        Actor

	// Article is set for every kind currently defined.
	Article *Article
	// Command is set for the two command kinds.
	Command *CommandInvocation

	Metadata map[string]string
}

// Conversation is where an event happened.
type Conversation struct {
	ID    string
	Type  ConversationType
	Title string
}

// Actor is the account behind an event.
type Actor struct {
	// ID is the platform user ID and doubles as the trade member ID.
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

// Article is one posted message.
type Article struct {
	ID               string
	ReplyToArticleID string
	Text             string
}

// Validate reports the first broken envelope or payload rule, wrapped in
// ErrInvalidEvent.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}

	var problem string
	switch {
	case e.ID == "":
		problem = "missing id"
	case e.Kind == "":
		problem = "missing kind"
	case e.OccurredAt.IsZero():
		problem = "missing occurred_at"
	case e.Conversation.ID == "":
		problem = "missing conversation id"
	}
	if problem != "" {
		return fmt.Errorf("%w: %s", ErrInvalidEvent, problem)
	}

	switch e.Kind {
	case EventKindArticleCreated, EventKindCommandReceived, EventKindSystemCommandReceived:
	default:
		return fmt.Errorf("%w: unsupported kind %s", ErrInvalidEvent, e.Kind)
	}
	if e.Article == nil {
		return fmt.Errorf("%w: %s requires article payload", ErrInvalidEvent, e.Kind)
	}
	if e.Kind != EventKindArticleCreated {
		if err := e.Command.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidEvent, e.Kind, err)
		}
	}

	return nil
}

package telegram

import (
	"time"

	"ex-otogi-trade/pkg/otogi"
)

const (
	// DriverType is the driver config "type" value that selects this driver.
	DriverType = "telegram"
	// DriverPlatform is the platform stamped on every event this driver emits.
	DriverPlatform otogi.Platform = otogi.PlatformTelegram
)

// Update is the Telegram adapter's internal DTO before neutral decoding.
//
// Only newly posted text messages are projected; edits, deletions, and
// membership changes are dropped at the mapper.
type Update struct {
	ID         string
	OccurredAt time.Time
	Chat       ChatRef
	Actor      ActorRef
	Message    *MessagePayload
	Metadata   map[string]string
}

// ChatRef identifies Telegram chat context.
type ChatRef struct {
	ID    string
	Title string
	Type  otogi.ConversationType
}

// ActorRef identifies Telegram actor context.
type ActorRef struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

// MessagePayload represents a Telegram message projection.
type MessagePayload struct {
	ID        string
	ReplyToID string
	Text      string
}

package trade

import "errors"

var (
	// ErrInvalidOrdinal indicates an ordinal outside the catalog bounds.
	ErrInvalidOrdinal = errors.New("trade: invalid ordinal")
	// ErrUnknownItem indicates an item identifier missing from the catalog.
	ErrUnknownItem = errors.New("trade: unknown item")
	// ErrEmptyCatalog indicates a catalog without any item.
	ErrEmptyCatalog = errors.New("trade: empty catalog")
	// ErrInvalidKind indicates an unsupported list kind.
	ErrInvalidKind = errors.New("trade: invalid list kind")
	// ErrInvalidMember indicates an empty member identifier.
	ErrInvalidMember = errors.New("trade: invalid member")
	// ErrInvalidRecord indicates a malformed match record.
	ErrInvalidRecord = errors.New("trade: invalid match record")
	// ErrMemberUnreachable marks a member who cannot be messaged privately,
	// usually because they never opened a chat with the bot or blocked it.
	ErrMemberUnreachable = errors.New("trade: member unreachable in private chat")
)

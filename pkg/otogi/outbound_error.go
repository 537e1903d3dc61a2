package otogi

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OutboundOperation names the dispatcher call that failed.
type OutboundOperation string

const (
	// OutboundOperationSendMessage identifies SendMessage operations.
	OutboundOperationSendMessage OutboundOperation = "send_message"
	// OutboundOperationDeleteMessage identifies DeleteMessage operations.
	OutboundOperationDeleteMessage OutboundOperation = "delete_message"
)

// OutboundErrorKind is a platform-neutral failure class.
type OutboundErrorKind string

const (
	// OutboundErrorKindRateLimited means the platform throttled the sink.
	OutboundErrorKindRateLimited OutboundErrorKind = "rate_limited"
	// OutboundErrorKindTemporary means the same request may succeed later.
	OutboundErrorKindTemporary OutboundErrorKind = "temporary"
	// OutboundErrorKindForbidden means the sink lacks permission, for example
	// a member blocked the bot or the bot cannot delete in a group.
	OutboundErrorKindForbidden OutboundErrorKind = "forbidden"
	// OutboundErrorKindNotFound means the peer or message is unknown to the
	// platform, for example a member who never opened a private chat.
	OutboundErrorKindNotFound OutboundErrorKind = "not_found"
	// OutboundErrorKindPermanent means the request is rejected for good.
	OutboundErrorKindPermanent OutboundErrorKind = "permanent"
	// OutboundErrorKindUnknown means the failure could not be classified.
	OutboundErrorKindUnknown OutboundErrorKind = "unknown"
)

// OutboundError describes one failed outbound operation.
type OutboundError struct {
	Operation OutboundOperation
	Kind      OutboundErrorKind
	Platform  Platform
	// SinkID is the configured sink that produced the failure, when known.
	SinkID string
	// RetryAfter is the platform's suggested delay for rate-limited failures.
	RetryAfter time.Duration
	// Code and Type carry the platform status code and error token.
	Code int
	Type string
	// Cause is the wrapped platform or transport error.
	Cause error
}

// Error renders the populated fields as key=value pairs followed by the cause.
func (e *OutboundError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var builder strings.Builder
	builder.WriteString("outbound error")
	separator := ": "
	field := func(key string, value string) {
		if value = strings.TrimSpace(value); value == "" {
			return
		}
		builder.WriteString(separator)
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(value)
		separator = " "
	}

	field("operation", string(e.Operation))
	field("kind", string(e.Kind))
	field("platform", string(e.Platform))
	field("sink_id", e.SinkID)
	if e.RetryAfter > 0 {
		field("retry_after", e.RetryAfter.String())
	}
	if e.Code != 0 {
		field("code", fmt.Sprint(e.Code))
	}
	field("type", e.Type)

	if e.Cause != nil {
		builder.WriteString(": ")
		builder.WriteString(e.Cause.Error())
	}

	return builder.String()
}

// Unwrap returns the wrapped root cause.
func (e *OutboundError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Cause
}

// Retryable reports whether repeating the same request may succeed.
func (e *OutboundError) Retryable() bool {
	if e == nil {
		return false
	}

	return e.Kind == OutboundErrorKindRateLimited || e.Kind == OutboundErrorKindTemporary
}

// Unreachable reports whether the target peer cannot receive messages from
// this sink at all.
func (e *OutboundError) Unreachable() bool {
	if e == nil {
		return false
	}

	return e.Kind == OutboundErrorKindForbidden || e.Kind == OutboundErrorKindNotFound
}

// AsOutboundError extracts an OutboundError from a wrapped error chain.
func AsOutboundError(err error) (*OutboundError, bool) {
	var outboundErr *OutboundError
	if err == nil || !errors.As(err, &outboundErr) || outboundErr == nil {
		return nil, false
	}

	return outboundErr, true
}

// AsOutboundRateLimit reports whether err is rate-limited, with the retry
// hint when the platform supplied one. It returns (0, true) for a rate limit
// without a hint.
func AsOutboundRateLimit(err error) (time.Duration, bool) {
	outboundErr, ok := AsOutboundError(err)
	if !ok || outboundErr.Kind != OutboundErrorKindRateLimited {
		return 0, false
	}

	return outboundErr.RetryAfter, true
}

// OutboundErrorKindOf returns the class of an outbound failure, or "" when
// err carries no OutboundError.
func OutboundErrorKindOf(err error) OutboundErrorKind {
	outboundErr, ok := AsOutboundError(err)
	if !ok {
		return ""
	}

	return outboundErr.Kind
}

package telegram

import (
	"errors"
	"slices"
	"strings"

	"ex-otogi-trade/pkg/otogi"

	"github.com/gotd/td/tgerr"
)

// mapTelegramOutboundError classifies gotd RPC failures into otogi outbound errors.
func mapTelegramOutboundError(
	operation otogi.OutboundOperation,
	sink otogi.EventSource,
	err error,
) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, otogi.ErrInvalidOutboundRequest) {
		return err
	}

	outboundErr := &otogi.OutboundError{
		Operation: operation,
		Kind:      otogi.OutboundErrorKindUnknown,
		Platform:  sink.Platform,
		SinkID:    sink.ID,
		Cause:     err,
	}

	if retryAfter, ok := tgerr.AsFloodWait(err); ok {
		outboundErr.Kind = otogi.OutboundErrorKindRateLimited
		outboundErr.RetryAfter = retryAfter
		if rpcErr, hasRPC := tgerr.As(err); hasRPC {
			outboundErr.Code = rpcErr.Code
			outboundErr.Type = rpcErr.Type
		}

		return outboundErr
	}

	rpcErr, ok := tgerr.As(err)
	if !ok {
		return outboundErr
	}

	outboundErr.Code = rpcErr.Code
	outboundErr.Type = rpcErr.Type
	outboundErr.Kind = classifyTelegramRPCError(rpcErr)

	return outboundErr
}

// Telegram error tokens that mean the bot may not act on the peer.
var forbiddenRPCTypes = []string{
	"USER_IS_BLOCKED",
	"CHAT_WRITE_FORBIDDEN",
	"CHAT_ADMIN_REQUIRED",
	"MESSAGE_DELETE_FORBIDDEN",
	"USER_BOT_REQUIRED",
}

// Telegram error tokens that mean the peer or message cannot be resolved.
var notFoundRPCTypes = []string{
	"PEER_ID_INVALID",
	"USER_ID_INVALID",
	"CHAT_ID_INVALID",
	"CHANNEL_INVALID",
	"MESSAGE_ID_INVALID",
	"INPUT_USER_DEACTIVATED",
}

func classifyTelegramRPCError(rpcErr *tgerr.Error) otogi.OutboundErrorKind {
	errorType := strings.ToUpper(strings.TrimSpace(rpcErr.Type))
	switch {
	case rpcErr.Code == 420 || rpcErr.Code == 429 || strings.Contains(errorType, "FLOOD"):
		return otogi.OutboundErrorKindRateLimited
	case rpcErr.Code == 303 || rpcErr.Code >= 500:
		return otogi.OutboundErrorKindTemporary
	case rpcErr.Code == 403 || slices.Contains(forbiddenRPCTypes, errorType):
		return otogi.OutboundErrorKindForbidden
	case slices.Contains(notFoundRPCTypes, errorType):
		return otogi.OutboundErrorKindNotFound
	case rpcErr.Code >= 400 && rpcErr.Code <= 406:
		return otogi.OutboundErrorKindPermanent
	default:
		return otogi.OutboundErrorKindUnknown
	}
}

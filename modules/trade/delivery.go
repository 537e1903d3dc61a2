package trade

import (
	"context"
	"fmt"
	"log/slog"

	tradecore "ex-otogi-trade/internal/trade"
	"ex-otogi-trade/pkg/otogi"
)

// logDeliveryFailure logs a failed outbound call. Unreachable peers are an
// expected condition and log at info; everything else warns.
func logDeliveryFailure(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	if logger == nil || err == nil {
		return
	}

	level := slog.LevelWarn
	attrs = append(attrs, "outbound_kind", string(otogi.OutboundErrorKindOf(err)))
	if outboundErr, ok := otogi.AsOutboundError(err); ok {
		if outboundErr.Unreachable() {
			level = slog.LevelInfo
		}
		if outboundErr.RetryAfter > 0 {
			attrs = append(attrs, "retry_after", outboundErr.RetryAfter)
		}
	}
	attrs = append(attrs, "error", err)

	logger.Log(ctx, level, msg, attrs...)
}

// privateDeliveryError tags unreachable private deliveries with
// tradecore.ErrMemberUnreachable while keeping the platform error in the chain.
func privateDeliveryError(memberID string, err error) error {
	if outboundErr, ok := otogi.AsOutboundError(err); ok && outboundErr.Unreachable() {
		return fmt.Errorf("notify member %s: %w: %w", memberID, tradecore.ErrMemberUnreachable, err)
	}

	return fmt.Errorf("notify member %s: %w", memberID, err)
}

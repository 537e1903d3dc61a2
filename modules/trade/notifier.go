package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tradecore "ex-otogi-trade/internal/trade"
	"ex-otogi-trade/pkg/otogi"
)

// matchNotifier delivers match notices through the outbound dispatcher.
type matchNotifier struct {
	dispatcher otogi.SinkDispatcher
	members    *memberDirectory
	announce   *otogi.OutboundTarget
	logger     *slog.Logger
}

// NotifyMatch messages both members privately and posts the announcement.
//
// Every delivery is attempted; failures are joined into the returned error.
func (n *matchNotifier) NotifyMatch(ctx context.Context, record tradecore.MatchRecord) error {
	labelA := n.members.label(record.MemberA)
	labelB := n.members.label(record.MemberB)

	var errs []error
	direct := []struct {
		member  string
		partner string
		gets    []string
		gives   []string
	}{
		{member: record.MemberA, partner: labelB, gets: record.AGets, gives: record.BGets},
		{member: record.MemberB, partner: labelA, gets: record.BGets, gives: record.AGets},
	}
	for _, notice := range direct {
		err := n.send(ctx, n.members.privateTarget(notice.member), renderMatchDM(notice.partner, notice.gets, notice.gives))
		if err != nil {
			logDeliveryFailure(ctx, n.logger, "trade match notice failed", err,
				"member", notice.member,
				"match_key", string(record.Key),
			)
			errs = append(errs, privateDeliveryError(notice.member, err))
		}
	}
	if n.announce != nil {
		text := renderMatchAnnouncement(labelA, labelB, record.AGets, record.BGets)
		if err := n.send(ctx, *n.announce, text); err != nil {
			logDeliveryFailure(ctx, n.logger, "trade match announcement failed", err,
				"conversation_id", n.announce.Conversation.ID,
				"match_key", string(record.Key),
			)
			errs = append(errs, fmt.Errorf("announce match: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (n *matchNotifier) send(ctx context.Context, target otogi.OutboundTarget, text string) error {
	_, err := n.dispatcher.SendMessage(ctx, otogi.SendMessageRequest{
		Target:             target,
		Text:               text,
		DisableLinkPreview: true,
	})

	return err
}

var _ tradecore.Notifier = (*matchNotifier)(nil)

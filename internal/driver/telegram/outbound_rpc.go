package telegram

import (
	"context"
	"fmt"
	"io"

	"github.com/gotd/td/crypto"
	"github.com/gotd/td/telegram/message/unpack"
	"github.com/gotd/td/tg"
)

type sendTextParams struct {
	text               string
	replyTo            int
	disableLinkPreview bool
	silent             bool
}

// outboundRPC is the slice of the Telegram API the dispatcher calls.
type outboundRPC interface {
	SendText(ctx context.Context, peer tg.InputPeerClass, params sendTextParams) (int, error)
	DeleteMessage(ctx context.Context, peer tg.InputPeerClass, messageID int, revoke bool) error
}

type gotdOutboundRPC struct {
	api  *tg.Client
	rand io.Reader
}

func newGotdOutboundRPC(api *tg.Client) gotdOutboundRPC {
	return gotdOutboundRPC{api: api, rand: crypto.DefaultRand()}
}

func (r gotdOutboundRPC) SendText(ctx context.Context, peer tg.InputPeerClass, params sendTextParams) (int, error) {
	randomID, err := crypto.RandInt64(r.rand)
	if err != nil {
		return 0, fmt.Errorf("send text random id: %w", err)
	}

	request := &tg.MessagesSendMessageRequest{
		Peer:      peer,
		Message:   params.text,
		RandomID:  randomID,
		NoWebpage: params.disableLinkPreview,
		Silent:    params.silent,
	}
	if params.replyTo > 0 {
		request.SetReplyTo(&tg.InputReplyToMessage{ReplyToMsgID: params.replyTo})
	}

	updates, err := r.api.MessagesSendMessage(ctx, request)
	if err != nil {
		return 0, fmt.Errorf("send text: %w", err)
	}
	id, err := unpack.MessageID(updates, nil)
	if err != nil {
		return 0, fmt.Errorf("extract sent message id: %w", err)
	}

	return id, nil
}

// DeleteMessage uses channels.deleteMessages for channel peers, which has no
// revoke flag, and messages.deleteMessages otherwise.
func (r gotdOutboundRPC) DeleteMessage(ctx context.Context, peer tg.InputPeerClass, messageID int, revoke bool) error {
	ids := []int{messageID}

	var err error
	if channel, ok := peer.(*tg.InputPeerChannel); ok {
		_, err = r.api.ChannelsDeleteMessages(ctx, &tg.ChannelsDeleteMessagesRequest{
			Channel: &tg.InputChannel{ChannelID: channel.ChannelID, AccessHash: channel.AccessHash},
			ID:      ids,
		})
	} else {
		_, err = r.api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{Revoke: revoke, ID: ids})
	}
	if err != nil {
		return fmt.Errorf("delete message %d: %w", messageID, err)
	}

	return nil
}

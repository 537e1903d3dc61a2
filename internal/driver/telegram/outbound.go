package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"ex-otogi-trade/pkg/otogi"

	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
)

const defaultOutboundTimeout = 3 * time.Second

// OutboundOption configures a SinkDispatcher.
type OutboundOption func(*outboundConfig)

// WithOutboundTimeout bounds every RPC call. Non-positive values are ignored.
func WithOutboundTimeout(timeout time.Duration) OutboundOption {
	return func(cfg *outboundConfig) {
		if timeout > 0 {
			cfg.rpcTimeout = timeout
		}
	}
}

// WithOutboundLogger logs each completed operation at debug level.
func WithOutboundLogger(logger *slog.Logger) OutboundOption {
	return func(cfg *outboundConfig) {
		cfg.logger = logger
	}
}

// WithSinkRef sets the sink reported in outbound errors. An empty platform
// defaults to telegram.
func WithSinkRef(ref otogi.EventSource) OutboundOption {
	return func(cfg *outboundConfig) {
		cfg.sink = ref
		if cfg.sink.Platform == "" {
			cfg.sink.Platform = DriverPlatform
		}
	}
}

type outboundConfig struct {
	rpcTimeout time.Duration
	logger     *slog.Logger
	sink       otogi.EventSource
}

// SinkDispatcher sends and deletes Telegram messages for modules. Targets
// are resolved through the peer cache. Conversations the cache has never
// seen fail with otogi.OutboundErrorKindNotFound before any RPC is made.
type SinkDispatcher struct {
	cfg   outboundConfig
	peers *PeerCache
	rpc   outboundRPC
}

var _ otogi.SinkDispatcher = (*SinkDispatcher)(nil)

// NewOutboundDispatcher builds a dispatcher on an authenticated gotd client.
func NewOutboundDispatcher(
	client *gotdtelegram.Client,
	peers *PeerCache,
	options ...OutboundOption,
) (*SinkDispatcher, error) {
	if client == nil {
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil client")
	}

	return newOutboundDispatcherWithRPC(newGotdOutboundRPC(client.API()), peers, options...)
}

func newOutboundDispatcherWithRPC(rpc outboundRPC, peers *PeerCache, options ...OutboundOption) (*SinkDispatcher, error) {
	switch {
	case rpc == nil:
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil rpc adapter")
	case peers == nil:
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil peer cache")
	}

	cfg := outboundConfig{
		rpcTimeout: defaultOutboundTimeout,
		sink:       otogi.EventSource{Platform: DriverPlatform},
	}
	for _, option := range options {
		option(&cfg)
	}

	return &SinkDispatcher{cfg: cfg, peers: peers, rpc: rpc}, nil
}

// SendMessage posts request.Text, optionally as a reply.
func (d *SinkDispatcher) SendMessage(
	ctx context.Context,
	request otogi.SendMessageRequest,
) (*otogi.OutboundMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("send message validate: %w", err)
	}
	params := sendTextParams{
		text:               request.Text,
		disableLinkPreview: request.DisableLinkPreview,
		silent:             request.Silent,
	}
	if request.ReplyToMessageID != "" {
		replyTo, err := parseMessageID(request.ReplyToMessageID)
		if err != nil {
			return nil, fmt.Errorf("send message parse reply id %s: %w", request.ReplyToMessageID, err)
		}
		params.replyTo = replyTo
	}

	var sentID int
	err := d.dispatch(ctx, otogi.OutboundOperationSendMessage, request.Target,
		func(ctx context.Context, peer tg.InputPeerClass) (err error) {
			sentID, err = d.rpc.SendText(ctx, peer, params)
			return err
		},
		"reply_to_message_id", request.ReplyToMessageID,
	)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	return &otogi.OutboundMessage{ID: strconv.Itoa(sentID), Target: request.Target}, nil
}

// DeleteMessage removes a message. Channel deletions always revoke.
func (d *SinkDispatcher) DeleteMessage(ctx context.Context, request otogi.DeleteMessageRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("delete message validate: %w", err)
	}
	messageID, err := parseMessageID(request.MessageID)
	if err != nil {
		return fmt.Errorf("delete message parse id %s: %w", request.MessageID, err)
	}

	err = d.dispatch(ctx, otogi.OutboundOperationDeleteMessage, request.Target,
		func(ctx context.Context, peer tg.InputPeerClass) error {
			return d.rpc.DeleteMessage(ctx, peer, messageID, request.Revoke)
		},
		"message_id", request.MessageID, "revoke", request.Revoke,
	)
	if err != nil {
		return fmt.Errorf("delete message %s: %w", request.MessageID, err)
	}

	return nil
}

// dispatch resolves target, runs call under the RPC timeout and classifies
// its failure as an *otogi.OutboundError.
func (d *SinkDispatcher) dispatch(
	ctx context.Context,
	operation otogi.OutboundOperation,
	target otogi.OutboundTarget,
	call func(context.Context, tg.InputPeerClass) error,
	attrs ...any,
) error {
	peer, err := d.resolvePeer(target)
	if errors.Is(err, errPeerUnknown) {
		return &otogi.OutboundError{
			Operation: operation,
			Kind:      otogi.OutboundErrorKindNotFound,
			Platform:  d.cfg.sink.Platform,
			SinkID:    d.cfg.sink.ID,
			Cause:     err,
		}
	}
	if err != nil {
		return fmt.Errorf("resolve peer: %w", err)
	}

	rpcCtx, cancel := context.WithTimeout(ctx, d.cfg.rpcTimeout)
	defer cancel()
	if err := call(rpcCtx, peer); err != nil {
		return mapTelegramOutboundError(operation, d.cfg.sink, fmt.Errorf("conversation %s: %w", target.Conversation.ID, err))
	}

	if d.cfg.logger != nil {
		d.cfg.logger.DebugContext(ctx, "telegram outbound operation", append([]any{
			"operation", operation,
			"sink_id", d.cfg.sink.ID,
			"conversation", target.Conversation.ID,
			"conversation_type", target.Conversation.Type,
		}, attrs...)...)
	}

	return nil
}

func (d *SinkDispatcher) resolvePeer(target otogi.OutboundTarget) (tg.InputPeerClass, error) {
	if sink := target.Sink; sink != nil && sink.Platform != "" && sink.Platform != DriverPlatform {
		return nil, fmt.Errorf("%w: platform %s", otogi.ErrOutboundUnsupported, sink.Platform)
	}

	peer, err := d.peers.Resolve(target.Conversation)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", target.Conversation.ID, err)
	}

	return peer, nil
}

func parseMessageID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	switch {
	case err != nil:
		return 0, fmt.Errorf("%w: invalid message id: %w", otogi.ErrInvalidOutboundRequest, err)
	case id <= 0:
		return 0, fmt.Errorf("%w: invalid message id", otogi.ErrInvalidOutboundRequest)
	}

	return id, nil
}

package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ex-otogi-trade/pkg/otogi"
)

const (
	defaultPublishTimeout    = 2 * time.Second
	defaultPeerFlushInterval = 30 * time.Second
)

// Driver turns Telegram updates into otogi events.
//
// One bad update never stops the loop: decode and publish failures go to
// the error handler and the driver moves on to the next update.
type Driver struct {
	name           string
	source         UpdateSource
	decoder        Decoder
	publishTimeout time.Duration
	onError        func(context.Context, error)

	peers             *PeerCache
	peerFlushInterval time.Duration
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithName sets the driver instance name used as the event source ID.
func WithName(name string) DriverOption {
	return func(d *Driver) {
		if name != "" {
			d.name = name
		}
	}
}

// WithPublishTimeout bounds how long one event may wait on the sink.
func WithPublishTimeout(timeout time.Duration) DriverOption {
	return func(d *Driver) {
		if timeout > 0 {
			d.publishTimeout = timeout
		}
	}
}

// WithErrorHandler receives per-update failures.
func WithErrorHandler(handler func(context.Context, error)) DriverOption {
	return func(d *Driver) {
		if handler != nil {
			d.onError = handler
		}
	}
}

// WithPeerPersistence flushes peers at most every interval while updates
// arrive, and once more on Shutdown.
func WithPeerPersistence(peers *PeerCache, interval time.Duration) DriverOption {
	return func(d *Driver) {
		d.peers = peers
		if interval > 0 {
			d.peerFlushInterval = interval
		}
	}
}

// NewDriver creates a Telegram driver reading from source.
func NewDriver(source UpdateSource, decoder Decoder, options ...DriverOption) (*Driver, error) {
	switch {
	case source == nil:
		return nil, fmt.Errorf("new telegram driver: nil source")
	case decoder == nil:
		return nil, fmt.Errorf("new telegram driver: nil decoder")
	}

	driver := &Driver{
		name:              DriverType,
		source:            source,
		decoder:           decoder,
		publishTimeout:    defaultPublishTimeout,
		onError:           func(context.Context, error) {},
		peerFlushInterval: defaultPeerFlushInterval,
	}
	for _, option := range options {
		option(driver)
	}

	return driver, nil
}

// Name returns the driver instance name.
func (d *Driver) Name() string {
	return d.name
}

// Start consumes updates until ctx ends or the source fails.
func (d *Driver) Start(ctx context.Context, sink otogi.EventSink) error {
	if sink == nil {
		return fmt.Errorf("start telegram driver: nil sink")
	}

	err := d.source.Consume(ctx, func(updateCtx context.Context, update Update) error {
		d.publish(updateCtx, update, sink)
		d.flushPeers(updateCtx)
		return nil
	})
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	return fmt.Errorf("start telegram driver: consume updates: %w", err)
}

// publish decodes update and hands the event to sink within publishTimeout.
func (d *Driver) publish(ctx context.Context, update Update, sink otogi.EventSink) {
	event, err := d.decode(ctx, update)
	if err != nil {
		d.onError(ctx, fmt.Errorf("handle update %s: %w", update.ID, err))
		return
	}
	event.Source = otogi.EventSource{Platform: DriverPlatform, ID: d.name}

	publishCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	if err := sink.Publish(publishCtx, event); err != nil {
		d.onError(ctx, fmt.Errorf("handle update %s publish: %w", update.ID, err))
	}
}

// decode runs the decoder, converting a panic into an error.
func (d *Driver) decode(ctx context.Context, update Update) (event *otogi.Event, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			event, err = nil, fmt.Errorf("decode telegram update %s panic: %v", update.ID, recovered)
		}
	}()

	event, err = d.decoder.Decode(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("decode telegram update %s: %w", update.ID, err)
	}

	return event, nil
}

func (d *Driver) flushPeers(ctx context.Context) {
	if d.peers == nil {
		return
	}
	if err := d.peers.FlushIfOlder(d.peerFlushInterval); err != nil {
		d.onError(ctx, err)
	}
}

// Shutdown persists the peer cache. The update loop itself stops with the
// Start context.
func (d *Driver) Shutdown(_ context.Context) error {
	if d.peers == nil {
		return nil
	}
	if err := d.peers.Flush(); err != nil {
		return fmt.Errorf("shutdown telegram driver %s: %w", d.name, err)
	}

	return nil
}

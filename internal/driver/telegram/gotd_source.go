package telegram

import (
	"context"
	"fmt"
)

// GotdClient abstracts one gotd/td session lifecycle.
type GotdClient interface {
	// Run starts the session and executes fn within the connected lifecycle.
	Run(ctx context.Context, fn func(runCtx context.Context) error) error
}

// GotdRawUpdateStream provides flattened gotd updates from an active session.
type GotdRawUpdateStream interface {
	// Updates returns a channel of update envelopes bound to ctx lifetime.
	Updates(ctx context.Context) (<-chan gotdUpdateEnvelope, error)
}

// GotdUpdateMapper maps flattened gotd updates into adapter Update DTOs.
type GotdUpdateMapper interface {
	// Map converts one envelope into adapter DTO form.
	// The accepted flag allows skipping unsupported update classes.
	Map(ctx context.Context, envelope gotdUpdateEnvelope) (Update, bool, error)
}

// GotdSource wires a gotd bot session into UpdateSource.
type GotdSource struct {
	client GotdClient
	stream GotdRawUpdateStream
	mapper GotdUpdateMapper
	report func(context.Context, error)
}

// NewGotdSource creates a source backed by gotd session APIs.
//
// report receives per-update mapping failures; those never stop the session.
func NewGotdSource(
	client GotdClient,
	stream GotdRawUpdateStream,
	mapper GotdUpdateMapper,
	report func(context.Context, error),
) (*GotdSource, error) {
	if client == nil {
		return nil, fmt.Errorf("new gotd source: nil client")
	}
	if stream == nil {
		return nil, fmt.Errorf("new gotd source: nil stream")
	}
	if mapper == nil {
		return nil, fmt.Errorf("new gotd source: nil mapper")
	}
	if report == nil {
		report = func(context.Context, error) {}
	}

	return &GotdSource{
		client: client,
		stream: stream,
		mapper: mapper,
		report: report,
	}, nil
}

// Consume runs a gotd session and forwards mapped updates to the handler.
func (s *GotdSource) Consume(ctx context.Context, handler UpdateHandler) error {
	if handler == nil {
		return fmt.Errorf("consume gotd updates: nil handler")
	}

	err := s.client.Run(ctx, func(runCtx context.Context) error {
		updates, err := s.stream.Updates(runCtx)
		if err != nil {
			return fmt.Errorf("get gotd updates stream: %w", err)
		}

		for {
			select {
			case <-runCtx.Done():
				return nil
			case envelope, ok := <-updates:
				if !ok {
					return nil
				}

				mapped, accepted, mapErr := s.mapUpdateSafely(runCtx, envelope)
				if mapErr != nil {
					s.report(runCtx, fmt.Errorf("map gotd update %s: %w", envelope.updateClass, mapErr))
					continue
				}
				if !accepted {
					continue
				}
				if err := handler(runCtx, mapped); err != nil {
					return fmt.Errorf("consume gotd update %s: %w", mapped.ID, err)
				}
			}
		}
	})
	if err != nil {
		return fmt.Errorf("consume gotd updates: %w", err)
	}

	return nil
}

// mapUpdateSafely isolates mapper panics so a bad mapping path cannot crash the process.
func (s *GotdSource) mapUpdateSafely(
	ctx context.Context,
	envelope gotdUpdateEnvelope,
) (mapped Update, accepted bool, err error) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		err = fmt.Errorf("map gotd update panic: %v", recovered)
	}()

	return s.mapper.Map(ctx, envelope)
}

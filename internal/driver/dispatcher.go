package driver

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"ex-otogi-trade/pkg/otogi"
)

// CompositeSinkDispatcher picks the driver sink for each outbound request.
//
// A target naming a sink ID goes to that sink. A target naming only a
// platform goes to that platform's single sink. A target naming neither goes
// to the only configured sink. Anything else fails with
// otogi.ErrOutboundUnsupported.
type CompositeSinkDispatcher struct {
	sinks map[string]Runtime
}

// NewCompositeSinkDispatcher collects the runtimes that can send. Sink IDs
// must be present and unique.
func NewCompositeSinkDispatcher(runtimes []Runtime) (*CompositeSinkDispatcher, error) {
	sinks := make(map[string]Runtime, len(runtimes))
	for _, runtime := range runtimes {
		if runtime.SinkDispatcher == nil {
			continue
		}
		id := runtime.Source.ID
		if id == "" {
			return nil, fmt.Errorf("new composite sink dispatcher: missing sink id")
		}
		if _, taken := sinks[id]; taken {
			return nil, fmt.Errorf("new composite sink dispatcher: duplicate sink id %s", id)
		}
		sinks[id] = runtime
	}

	return &CompositeSinkDispatcher{sinks: sinks}, nil
}

// SendMessage implements otogi.SinkDispatcher.
func (d *CompositeSinkDispatcher) SendMessage(
	ctx context.Context,
	request otogi.SendMessageRequest,
) (*otogi.OutboundMessage, error) {
	sink, err := d.route(request.Target.Sink)
	if err != nil {
		return nil, fmt.Errorf("resolve sink for send message: %w", err)
	}

	sent, err := sink.SendMessage(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("route send message: %w", err)
	}

	return sent, nil
}

// DeleteMessage implements otogi.SinkDispatcher.
func (d *CompositeSinkDispatcher) DeleteMessage(ctx context.Context, request otogi.DeleteMessageRequest) error {
	sink, err := d.route(request.Target.Sink)
	if err != nil {
		return fmt.Errorf("resolve sink for delete message: %w", err)
	}
	if err := sink.DeleteMessage(ctx, request); err != nil {
		return fmt.Errorf("route delete message: %w", err)
	}

	return nil
}

func (d *CompositeSinkDispatcher) route(ref *otogi.EventSource) (otogi.SinkDispatcher, error) {
	if d == nil || len(d.sinks) == 0 {
		return nil, fmt.Errorf("%w: no sinks configured", otogi.ErrOutboundUnsupported)
	}

	switch {
	case ref == nil:
		return d.only(func(Runtime) bool { return true }, "missing target sink")
	case ref.ID != "":
		sink, ok := d.sinks[ref.ID]
		if !ok {
			return nil, fmt.Errorf("%w: sink %s not found", otogi.ErrOutboundUnsupported, ref.ID)
		}
		if ref.Platform != "" && ref.Platform != sink.Source.Platform {
			return nil, fmt.Errorf("%w: sink %s serves %s, not %s",
				otogi.ErrOutboundUnsupported, ref.ID, sink.Source.Platform, ref.Platform)
		}
		return sink.SinkDispatcher, nil
	case ref.Platform != "":
		return d.only(func(sink Runtime) bool { return sink.Source.Platform == ref.Platform },
			"no single sink for platform "+string(ref.Platform))
	default:
		return nil, fmt.Errorf("%w: empty sink reference", otogi.ErrOutboundUnsupported)
	}
}

// only returns the single sink matching keep, failing with reason when
// none or several match.
func (d *CompositeSinkDispatcher) only(keep func(Runtime) bool, reason string) (otogi.SinkDispatcher, error) {
	var matches []Runtime
	for _, id := range slices.Sorted(maps.Keys(d.sinks)) {
		if sink := d.sinks[id]; keep(sink) {
			matches = append(matches, sink)
		}
	}
	if len(matches) != 1 {
		return nil, fmt.Errorf("%w: %s", otogi.ErrOutboundUnsupported, reason)
	}

	return matches[0].SinkDispatcher, nil
}

var _ otogi.SinkDispatcher = (*CompositeSinkDispatcher)(nil)

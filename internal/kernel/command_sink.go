package kernel

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"ex-otogi-trade/pkg/otogi"
)

var errNoServiceLookup = errors.New("service lookup unavailable")

// commandLookup resolves a registered spec by prefix and name or alias.
type commandLookup func(prefix otogi.CommandPrefix, name string) (otogi.CommandSpec, bool)

// newDriverEventSink returns the sink drivers publish into: the bus, plus
// command derivation against the kernel's registered commands.
func (k *Kernel) newDriverEventSink() otogi.EventSink {
	return &commandDerivingSink{
		base:        k.bus,
		lookup:      k.lookupCommand,
		services:    k.services,
		replyErrors: k.cfg.commandErrorReply,
		onError:     k.cfg.onAsyncError,
	}
}

// commandDerivingSink publishes every source event unchanged and, when an
// article invokes a registered command, a derived command event after it.
//
// Text that only looks like a command (an unregistered name) is left to
// article subscribers. A registered command with bad arguments is never
// derived; the author gets its usage instead.
type commandDerivingSink struct {
	base        otogi.EventSink
	lookup      commandLookup
	services    otogi.ServiceRegistry
	replyErrors bool
	onError     func(context.Context, string, error)
}

// Publish implements otogi.EventSink.
func (s *commandDerivingSink) Publish(ctx context.Context, event *otogi.Event) error {
	switch {
	case event == nil:
		return fmt.Errorf("publish command deriving sink: nil event")
	case s.base == nil:
		return fmt.Errorf("publish command deriving sink: nil base sink")
	}

	if err := s.base.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish source event %s: %w", event.ID, err)
	}

	derived, spec, err := s.derive(event)
	switch {
	case err != nil:
		s.rejectInvocation(ctx, event, spec, err)
		return nil
	case derived == nil:
		return nil
	}

	if err := s.base.Publish(ctx, derived); err != nil {
		return fmt.Errorf("publish derived command %s: %w", derived.Command.Name, err)
	}

	return nil
}

// derive returns the command event for event, nil when event invokes no
// registered command, or the binding error together with the matched spec.
func (s *commandDerivingSink) derive(event *otogi.Event) (*otogi.Event, otogi.CommandSpec, error) {
	if event.Kind != otogi.EventKindArticleCreated || event.Article == nil {
		return nil, otogi.CommandSpec{}, nil
	}
	candidate, matched, parseErr := otogi.ParseCommandCandidate(event.Article.Text)
	if !matched {
		return nil, otogi.CommandSpec{}, nil
	}
	spec, registered := s.lookup(candidate.Prefix, candidate.Name)
	if !registered {
		return nil, otogi.CommandSpec{}, nil
	}
	if parseErr != nil {
		return nil, spec, parseErr
	}

	invocation, err := otogi.BindCommand(candidate, spec, event)
	if err != nil {
		return nil, spec, err
	}

	return commandEvent(event, candidate.Prefix, invocation), spec, nil
}

// rejectInvocation answers a malformed command with its usage, or only
// reports it when replies are off.
func (s *commandDerivingSink) rejectInvocation(
	ctx context.Context,
	source *otogi.Event,
	spec otogi.CommandSpec,
	cause error,
) {
	scope := "command " + spec.Name
	if !s.replyErrors {
		s.report(ctx, scope, cause)
		return
	}
	if err := s.sendUsage(ctx, source, spec, cause); err != nil {
		s.report(ctx, scope+" error reply", err)
	}
}

func (s *commandDerivingSink) sendUsage(
	ctx context.Context,
	source *otogi.Event,
	spec otogi.CommandSpec,
	cause error,
) error {
	if s.services == nil {
		return fmt.Errorf("resolve dispatcher: %w", errNoServiceLookup)
	}
	dispatcher, err := otogi.ResolveAs[otogi.SinkDispatcher](s.services, otogi.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("resolve dispatcher: %w", err)
	}
	target, err := otogi.OutboundTargetFromEvent(source)
	if err != nil {
		return fmt.Errorf("derive target: %w", err)
	}

	if _, err := dispatcher.SendMessage(ctx, otogi.SendMessageRequest{
		Target:           target,
		Text:             usageReply(spec, cause),
		ReplyToMessageID: source.Article.ID,
	}); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	return nil
}

func (s *commandDerivingSink) report(ctx context.Context, scope string, err error) {
	if s.onError != nil {
		s.onError(ctx, scope, err)
	}
}

// commandEvent copies source into a command event. The derived ID is the
// source ID plus a kind suffix, so redelivery of one article derives the
// same command ID.
func commandEvent(source *otogi.Event, prefix otogi.CommandPrefix, invocation otogi.CommandInvocation) *otogi.Event {
	kind, suffix := otogi.EventKindCommandReceived, "#command"
	if prefix == otogi.CommandPrefixSystem {
		kind, suffix = otogi.EventKindSystemCommandReceived, "#system-command"
	}
	article := *source.Article
	invocation.Options = slices.Clone(invocation.Options)

	return &otogi.Event{
		ID:           source.ID + suffix,
		Kind:         kind,
		OccurredAt:   source.OccurredAt,
		Source:       source.Source,
		Conversation: source.Conversation,
		Actor:        source.Actor,
		Article:      &article,
		Command:      &invocation,
		Metadata:     maps.Clone(source.Metadata),
	}
}

func usageReply(spec otogi.CommandSpec, cause error) string {
	usage := otogi.CommandUsage(spec)
	if cause == nil {
		return usage
	}

	return cause.Error() + "\nusage: " + usage
}

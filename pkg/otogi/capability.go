package otogi

import (
	"slices"
	"strings"
)

// Capability describes what a module can process and what resources it requires.
type Capability struct {
	Name             string
	Description      string
	Interest         InterestSet
	RequiredServices []string
}

// InterestSet describes event selection criteria for capability negotiation.
type InterestSet struct {
	// Kinds restricts matching event kinds; empty matches every kind.
	Kinds []EventKind
	// RequireArticle requires an article payload.
	RequireArticle bool
	// RequireCommand requires a command payload.
	RequireCommand bool
	// CommandNames restricts command payload names; empty matches every command.
	CommandNames []string
	// ConversationTypes restricts conversation scope; empty matches every scope.
	ConversationTypes []ConversationType
	// Sources restricts producing drivers; empty matches every source.
	Sources []EventSource
}

// Matches reports whether an event satisfies the declared interest set.
func (i InterestSet) Matches(event *Event) bool {
	switch {
	case event == nil:
		return false
	case len(i.Kinds) > 0 && !slices.Contains(i.Kinds, event.Kind):
		return false
	case i.RequireArticle && event.Article == nil:
		return false
	case i.RequireCommand && event.Command == nil:
		return false
	case len(i.CommandNames) > 0 && (event.Command == nil || !containsCommandName(i.CommandNames, event.Command.Name)):
		return false
	case len(i.ConversationTypes) > 0 && !slices.Contains(i.ConversationTypes, event.Conversation.Type):
		return false
	case len(i.Sources) > 0 && !sourceMatches(i.Sources, event.Source):
		return false
	}

	return true
}

// Allows reports whether a subscription with filter stays inside this
// interest set: every restriction declared here must be at least as strict
// in filter.
func (i InterestSet) Allows(filter InterestSet) bool {
	switch {
	case len(i.Kinds) > 0 && !narrows(filter.Kinds, func(kind EventKind) bool {
		return slices.Contains(i.Kinds, kind)
	}):
		return false
	case i.RequireArticle && !filter.RequireArticle:
		return false
	case i.RequireCommand && !filter.RequireCommand:
		return false
	case len(i.CommandNames) > 0 && !narrows(filter.CommandNames, func(name string) bool {
		return containsCommandName(i.CommandNames, name)
	}):
		return false
	case len(i.ConversationTypes) > 0 && !narrows(filter.ConversationTypes, func(kind ConversationType) bool {
		return slices.Contains(i.ConversationTypes, kind)
	}):
		return false
	case len(i.Sources) > 0 && !narrows(filter.Sources, func(source EventSource) bool {
		return sourceMatches(i.Sources, source)
	}):
		return false
	}

	return true
}

// narrows reports whether filter is non-empty and every value is allowed.
// An empty filter means "anything", which is never narrower than a restriction.
func narrows[T any](filter []T, allowed func(T) bool) bool {
	if len(filter) == 0 {
		return false
	}
	for _, value := range filter {
		if !allowed(value) {
			return false
		}
	}

	return true
}

func containsCommandName(names []string, target string) bool {
	target = normalizeCommandName(target)

	return slices.ContainsFunc(names, func(name string) bool {
		return normalizeCommandName(name) == target
	})
}

// sourceMatches treats empty fields in a declared source as wildcards.
func sourceMatches(sources []EventSource, source EventSource) bool {
	return slices.ContainsFunc(sources, func(candidate EventSource) bool {
		return (candidate.Platform == "" || candidate.Platform == source.Platform) &&
			(candidate.ID == "" || strings.EqualFold(candidate.ID, source.ID))
	})
}

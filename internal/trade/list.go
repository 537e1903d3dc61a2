package trade

import (
	"context"
	"sort"
	"strings"
)

// ItemSet is an unordered set of item identifiers.
type ItemSet map[string]struct{}

// NewItemSet builds a set from identifiers.
func NewItemSet(ids ...string) ItemSet {
	set := make(ItemSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	return set
}

// Has reports whether the set contains id.
func (s ItemSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the identifiers in ascending order.
func (s ItemSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// Intersect returns the sorted identifiers present in both sets.
func (s ItemSet) Intersect(other ItemSet) []string {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}

	shared := make([]string, 0)
	for id := range small {
		if large.Has(id) {
			shared = append(shared, id)
		}
	}
	sort.Strings(shared)

	return shared
}

// Clone returns an independent copy of the set.
func (s ItemSet) Clone() ItemSet {
	clone := make(ItemSet, len(s))
	for id := range s {
		clone[id] = struct{}{}
	}

	return clone
}

// MemberList is one member's want and have sets.
//
// An item may be in both sets at once; that state is permitted and never
// produces a match on its own.
type MemberList struct {
	// MemberID is the opaque platform member identifier.
	MemberID string
	// Wants holds items the member is looking for.
	Wants ItemSet
	// Haves holds items the member can give away.
	Haves ItemSet
}

// Set returns the list selected by kind.
func (l MemberList) Set(kind Kind) ItemSet {
	if kind == KindHave {
		return l.Haves
	}

	return l.Wants
}

// Empty reports whether both lists are empty.
func (l MemberList) Empty() bool {
	return len(l.Wants) == 0 && len(l.Haves) == 0
}

// Snapshot maps member IDs to their lists at a single point in time.
type Snapshot map[string]MemberList

// MemberIDs returns member identifiers in ascending order.
func (s Snapshot) MemberIDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// AddResult classifies every requested item of an add batch.
type AddResult struct {
	// Added lists items that were inserted by this call.
	Added []Item
	// AlreadyPresent lists items that were in the target set before the call.
	AlreadyPresent []Item
}

// RemoveResult classifies every requested item of a remove batch.
type RemoveResult struct {
	// Removed lists items deleted by this call.
	Removed []Item
	// NotFound lists items that were absent from the target set.
	NotFound []Item
}

// ListStore persists member want/have lists.
//
// AddItems and RemoveItems are atomic per batch: on error nothing is applied.
// Snapshot must never mix states from different points in time.
type ListStore interface {
	// AddItems inserts items into one member list.
	AddItems(ctx context.Context, memberID string, kind Kind, items []Item) (AddResult, error)
	// RemoveItems deletes items from one member list.
	RemoveItems(ctx context.Context, memberID string, kind Kind, items []Item) (RemoveResult, error)
	// MemberList returns one member's lists; unknown members yield empty sets.
	MemberList(ctx context.Context, memberID string) (MemberList, error)
	// Snapshot returns every member's lists at one point in time.
	Snapshot(ctx context.Context) (Snapshot, error)
}

// ValidateBatch checks a mutation request before any store applies it.
func ValidateBatch(memberID string, kind Kind, items []Item) error {
	if strings.TrimSpace(memberID) == "" {
		return ErrInvalidMember
	}
	if err := kind.Validate(); err != nil {
		return err
	}
	for _, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			return ErrUnknownItem
		}
	}

	return nil
}

package trade

import (
	"context"
	"fmt"
	"sync"
)

// listKey addresses one member list.
type listKey struct {
	memberID string
	kind     Kind
}

// MemoryStore is an in-process ListStore.
type MemoryStore struct {
	mu    sync.RWMutex
	lists map[listKey]ItemSet
}

// NewMemoryStore creates an empty in-memory list store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lists: make(map[listKey]ItemSet)}
}

// AddItems inserts items into one member list.
func (s *MemoryStore) AddItems(
	ctx context.Context,
	memberID string,
	kind Kind,
	items []Item,
) (AddResult, error) {
	if err := ctx.Err(); err != nil {
		return AddResult{}, fmt.Errorf("memory store add items: %w", err)
	}
	if err := ValidateBatch(memberID, kind, items); err != nil {
		return AddResult{}, fmt.Errorf("memory store add items: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := listKey{memberID: memberID, kind: kind}
	set := s.lists[key]
	if set == nil {
		set = make(ItemSet)
		s.lists[key] = set
	}

	var result AddResult
	for _, item := range items {
		if set.Has(item.ID) {
			result.AlreadyPresent = append(result.AlreadyPresent, item)
			continue
		}
		set[item.ID] = struct{}{}
		result.Added = append(result.Added, item)
	}

	return result, nil
}

// RemoveItems deletes items from one member list.
func (s *MemoryStore) RemoveItems(
	ctx context.Context,
	memberID string,
	kind Kind,
	items []Item,
) (RemoveResult, error) {
	if err := ctx.Err(); err != nil {
		return RemoveResult{}, fmt.Errorf("memory store remove items: %w", err)
	}
	if err := ValidateBatch(memberID, kind, items); err != nil {
		return RemoveResult{}, fmt.Errorf("memory store remove items: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.lists[listKey{memberID: memberID, kind: kind}]
	var result RemoveResult
	for _, item := range items {
		if !set.Has(item.ID) {
			result.NotFound = append(result.NotFound, item)
			continue
		}
		delete(set, item.ID)
		result.Removed = append(result.Removed, item)
	}

	return result, nil
}

// MemberList returns copies of one member's lists.
func (s *MemoryStore) MemberList(ctx context.Context, memberID string) (MemberList, error) {
	if err := ctx.Err(); err != nil {
		return MemberList{}, fmt.Errorf("memory store member list: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return MemberList{
		MemberID: memberID,
		Wants:    s.lists[listKey{memberID: memberID, kind: KindWant}].Clone(),
		Haves:    s.lists[listKey{memberID: memberID, kind: KindHave}].Clone(),
	}, nil
}

// Snapshot copies all member lists under one read lock.
func (s *MemoryStore) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory store snapshot: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(Snapshot)
	for key, set := range s.lists {
		list, ok := snapshot[key.memberID]
		if !ok {
			list = MemberList{MemberID: key.memberID, Wants: ItemSet{}, Haves: ItemSet{}}
		}
		switch key.kind {
		case KindWant:
			list.Wants = set.Clone()
		case KindHave:
			list.Haves = set.Clone()
		}
		snapshot[key.memberID] = list
	}

	return snapshot, nil
}

var _ ListStore = (*MemoryStore)(nil)

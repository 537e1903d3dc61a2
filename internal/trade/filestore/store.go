// Package filestore persists trade lists and the match ledger as JSON files.
//
// Every mutation rewrites its file through an atomic rename, so readers of the
// directory never observe a partially written document.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"ex-otogi-trade/internal/trade"
)

const (
	listsFileName  = "lists.json"
	ledgerFileName = "ledger.json"
)

// writeFunc replaces the destination file with the reader contents.
type writeFunc func(path string, r io.Reader) error

type listsDocument struct {
	Members map[string]memberDocument `json:"members"`
}

type memberDocument struct {
	Want []string `json:"want"`
	Have []string `json:"have"`
}

type ledgerDocument struct {
	Records []recordDocument `json:"records"`
}

type recordDocument struct {
	Key        string    `json:"key"`
	MemberA    string    `json:"member_a"`
	MemberB    string    `json:"member_b"`
	AGets      []string  `json:"a_gets"`
	BGets      []string  `json:"b_gets"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Store implements trade.ListStore and trade.Ledger over a directory.
type Store struct {
	dir   string
	write writeFunc

	listsMu sync.RWMutex
	lists   trade.Snapshot

	ledgerMu sync.Mutex
	records  []trade.MatchRecord
	keys     map[trade.MatchKey]struct{}
}

// Open loads existing documents from dir, creating dir when missing.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open file store %s: %w", dir, err)
	}

	store := &Store{
		dir:   dir,
		write: atomic.WriteFile,
		lists: make(trade.Snapshot),
		keys:  make(map[trade.MatchKey]struct{}),
	}
	if err := store.loadLists(); err != nil {
		return nil, fmt.Errorf("open file store %s: %w", dir, err)
	}
	if err := store.loadLedger(); err != nil {
		return nil, fmt.Errorf("open file store %s: %w", dir, err)
	}

	return store, nil
}

func (s *Store) loadLists() error {
	var document listsDocument
	found, err := readJSON(filepath.Join(s.dir, listsFileName), &document)
	if err != nil || !found {
		return err
	}

	for memberID, member := range document.Members {
		s.lists[memberID] = trade.MemberList{
			MemberID: memberID,
			Wants:    trade.NewItemSet(member.Want...),
			Haves:    trade.NewItemSet(member.Have...),
		}
	}

	return nil
}

func (s *Store) loadLedger() error {
	var document ledgerDocument
	found, err := readJSON(filepath.Join(s.dir, ledgerFileName), &document)
	if err != nil || !found {
		return err
	}

	for _, raw := range document.Records {
		record := trade.MatchRecord{
			Key:        trade.MatchKey(raw.Key),
			MemberA:    raw.MemberA,
			MemberB:    raw.MemberB,
			AGets:      raw.AGets,
			BGets:      raw.BGets,
			RecordedAt: raw.RecordedAt.UTC(),
		}
		if _, duplicate := s.keys[record.Key]; duplicate {
			continue
		}
		s.keys[record.Key] = struct{}{}
		s.records = append(s.records, record)
	}

	return nil
}

func readJSON(path string, target any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}

	return true, nil
}

func (s *Store) writeJSON(name string, document any) error {
	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	data = append(data, '\n')
	if err := s.write(filepath.Join(s.dir, name), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	return nil
}

// AddItems applies the batch to a copy and swaps it in after the write succeeds.
func (s *Store) AddItems(
	ctx context.Context,
	memberID string,
	kind trade.Kind,
	items []trade.Item,
) (trade.AddResult, error) {
	if err := ctx.Err(); err != nil {
		return trade.AddResult{}, fmt.Errorf("file store add items: %w", err)
	}
	if err := trade.ValidateBatch(memberID, kind, items); err != nil {
		return trade.AddResult{}, fmt.Errorf("file store add items: %w", err)
	}

	s.listsMu.Lock()
	defer s.listsMu.Unlock()

	list := s.cloneMember(memberID)
	set := list.Set(kind)
	var result trade.AddResult
	for _, item := range items {
		if set.Has(item.ID) {
			result.AlreadyPresent = append(result.AlreadyPresent, item)
			continue
		}
		set[item.ID] = struct{}{}
		result.Added = append(result.Added, item)
	}

	if err := s.commitMember(list); err != nil {
		return trade.AddResult{}, fmt.Errorf("file store add items: %w", err)
	}

	return result, nil
}

// RemoveItems applies the batch to a copy and swaps it in after the write succeeds.
func (s *Store) RemoveItems(
	ctx context.Context,
	memberID string,
	kind trade.Kind,
	items []trade.Item,
) (trade.RemoveResult, error) {
	if err := ctx.Err(); err != nil {
		return trade.RemoveResult{}, fmt.Errorf("file store remove items: %w", err)
	}
	if err := trade.ValidateBatch(memberID, kind, items); err != nil {
		return trade.RemoveResult{}, fmt.Errorf("file store remove items: %w", err)
	}

	s.listsMu.Lock()
	defer s.listsMu.Unlock()

	list := s.cloneMember(memberID)
	set := list.Set(kind)
	var result trade.RemoveResult
	for _, item := range items {
		if !set.Has(item.ID) {
			result.NotFound = append(result.NotFound, item)
			continue
		}
		delete(set, item.ID)
		result.Removed = append(result.Removed, item)
	}
	if len(result.Removed) == 0 {
		return result, nil
	}

	if err := s.commitMember(list); err != nil {
		return trade.RemoveResult{}, fmt.Errorf("file store remove items: %w", err)
	}

	return result, nil
}

// cloneMember must be called with listsMu held.
func (s *Store) cloneMember(memberID string) trade.MemberList {
	current, ok := s.lists[memberID]
	if !ok {
		return trade.MemberList{MemberID: memberID, Wants: trade.ItemSet{}, Haves: trade.ItemSet{}}
	}

	return trade.MemberList{
		MemberID: memberID,
		Wants:    current.Wants.Clone(),
		Haves:    current.Haves.Clone(),
	}
}

// commitMember persists the lists with list replacing its member entry, then
// installs it in memory. It must be called with listsMu held.
func (s *Store) commitMember(list trade.MemberList) error {
	document := listsDocument{Members: make(map[string]memberDocument, len(s.lists)+1)}
	for memberID, current := range s.lists {
		document.Members[memberID] = memberDocument{Want: current.Wants.Sorted(), Have: current.Haves.Sorted()}
	}
	document.Members[list.MemberID] = memberDocument{Want: list.Wants.Sorted(), Have: list.Haves.Sorted()}

	if err := s.writeJSON(listsFileName, document); err != nil {
		return err
	}
	s.lists[list.MemberID] = list

	return nil
}

// MemberList returns copies of one member's lists.
func (s *Store) MemberList(ctx context.Context, memberID string) (trade.MemberList, error) {
	if err := ctx.Err(); err != nil {
		return trade.MemberList{}, fmt.Errorf("file store member list: %w", err)
	}

	s.listsMu.RLock()
	defer s.listsMu.RUnlock()

	return s.cloneMember(memberID), nil
}

// Snapshot copies every member list under one read lock.
func (s *Store) Snapshot(ctx context.Context) (trade.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("file store snapshot: %w", err)
	}

	s.listsMu.RLock()
	defer s.listsMu.RUnlock()

	snapshot := make(trade.Snapshot, len(s.lists))
	for memberID := range s.lists {
		snapshot[memberID] = s.cloneMember(memberID)
	}

	return snapshot, nil
}

// Exists reports whether key was recorded.
func (s *Store) Exists(ctx context.Context, key trade.MatchKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("file store ledger exists: %w", err)
	}

	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()

	_, ok := s.keys[key]
	return ok, nil
}

// RecordIfAbsent checks, persists and installs record under the ledger lock.
func (s *Store) RecordIfAbsent(ctx context.Context, record trade.MatchRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("file store ledger record: %w", err)
	}
	if err := record.Validate(); err != nil {
		return false, fmt.Errorf("file store ledger record: %w", err)
	}

	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()

	if _, exists := s.keys[record.Key]; exists {
		return false, nil
	}

	records := append(append(make([]trade.MatchRecord, 0, len(s.records)+1), s.records...), record)
	document := ledgerDocument{Records: make([]recordDocument, 0, len(records))}
	for _, current := range records {
		document.Records = append(document.Records, recordDocument{
			Key:        string(current.Key),
			MemberA:    current.MemberA,
			MemberB:    current.MemberB,
			AGets:      current.AGets,
			BGets:      current.BGets,
			RecordedAt: current.RecordedAt.UTC(),
		})
	}
	if err := s.writeJSON(ledgerFileName, document); err != nil {
		return false, fmt.Errorf("file store ledger record: %w", err)
	}

	s.records = records
	s.keys[record.Key] = struct{}{}

	return true, nil
}

// Records lists ledger entries ordered by recording time.
func (s *Store) Records(ctx context.Context) ([]trade.MatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("file store ledger records: %w", err)
	}

	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()

	records := append(make([]trade.MatchRecord, 0, len(s.records)), s.records...)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].RecordedAt.Before(records[j].RecordedAt)
	})

	return records, nil
}

var (
	_ trade.ListStore = (*Store)(nil)
	_ trade.Ledger    = (*Store)(nil)
)

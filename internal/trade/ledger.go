package trade

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MatchRecord is the durable proof that a match was surfaced.
type MatchRecord struct {
	Key        MatchKey
	MemberA    string
	MemberB    string
	AGets      []string
	BGets      []string
	RecordedAt time.Time
}

// NewMatchRecord builds a ledger record from a candidate.
func NewMatchRecord(candidate Candidate, recordedAt time.Time) MatchRecord {
	return MatchRecord{
		Key:        candidate.Key(),
		MemberA:    candidate.MemberA,
		MemberB:    candidate.MemberB,
		AGets:      sortedCopy(candidate.AGets),
		BGets:      sortedCopy(candidate.BGets),
		RecordedAt: recordedAt.UTC(),
	}
}

// Validate checks required record fields.
func (r MatchRecord) Validate() error {
	switch {
	case strings.TrimSpace(string(r.Key)) == "":
		return fmt.Errorf("%w: missing key", ErrInvalidRecord)
	case strings.TrimSpace(r.MemberA) == "" || strings.TrimSpace(r.MemberB) == "":
		return fmt.Errorf("%w: missing member", ErrInvalidRecord)
	case r.MemberA == r.MemberB:
		return fmt.Errorf("%w: member paired with itself", ErrInvalidRecord)
	default:
		return nil
	}
}

// Ledger is the append-only record of surfaced matches.
type Ledger interface {
	// Exists reports whether a record with key was stored.
	Exists(ctx context.Context, key MatchKey) (bool, error)
	// RecordIfAbsent atomically stores record unless its key exists and
	// reports whether this call stored it.
	RecordIfAbsent(ctx context.Context, record MatchRecord) (bool, error)
	// Records lists stored records ordered by recording time.
	Records(ctx context.Context) ([]MatchRecord, error)
}

// MemoryLedger is an in-process Ledger.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[MatchKey]MatchRecord
	order   []MatchKey
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[MatchKey]MatchRecord)}
}

// Exists reports whether key was recorded.
func (l *MemoryLedger) Exists(ctx context.Context, key MatchKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("memory ledger exists: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.records[key]
	return ok, nil
}

// RecordIfAbsent stores record under one lock acquisition.
func (l *MemoryLedger) RecordIfAbsent(ctx context.Context, record MatchRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("memory ledger record: %w", err)
	}
	if err := record.Validate(); err != nil {
		return false, fmt.Errorf("memory ledger record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.records[record.Key]; exists {
		return false, nil
	}
	l.records[record.Key] = record
	l.order = append(l.order, record.Key)

	return true, nil
}

// Records lists stored records in insertion order.
func (l *MemoryLedger) Records(ctx context.Context) ([]MatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory ledger records: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records := make([]MatchRecord, 0, len(l.order))
	for _, key := range l.order {
		records = append(records, l.records[key])
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].RecordedAt.Before(records[j].RecordedAt)
	})

	return records, nil
}

var _ Ledger = (*MemoryLedger)(nil)

package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// MatchFunc computes candidates from a snapshot.
type MatchFunc func(snapshot Snapshot) []Candidate

// SweepReport summarizes one sweep run.
type SweepReport struct {
	// ID correlates log lines of one run.
	ID string
	// Candidates counts matches found in the snapshot.
	Candidates int
	// Recorded counts candidates newly stored in the ledger.
	Recorded int
	// Notified counts recorded candidates whose notification succeeded.
	Notified int
	// LedgerFailures counts candidates skipped because the ledger write failed.
	LedgerFailures int
	// NotifyFailures counts recorded candidates whose notification failed.
	NotifyFailures int
}

// PlannedMatch is a candidate paired with its current ledger state.
type PlannedMatch struct {
	Candidate Candidate
	Key       MatchKey
	Recorded  bool
}

// Sweeper runs snapshot, match, record, notify cycles.
//
// Sweeps may run concurrently. Each candidate is recorded before it is
// notified, and only the caller whose RecordIfAbsent succeeds notifies it.
type Sweeper struct {
	store    ListStore
	ledger   Ledger
	notifier Notifier
	match    MatchFunc
	logger   *slog.Logger
	now      func() time.Time
}

// SweeperOption mutates sweeper configuration.
type SweeperOption func(*Sweeper)

// WithLogger sets the sweep logger.
func WithLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMatchFunc replaces the match engine, for example with FindMatchesIndexed.
func WithMatchFunc(match MatchFunc) SweeperOption {
	return func(s *Sweeper) {
		if match != nil {
			s.match = match
		}
	}
}

// NewSweeper creates a sweeper over the given collaborators.
func NewSweeper(store ListStore, ledger Ledger, notifier Notifier, options ...SweeperOption) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("new sweeper: nil list store")
	}
	if ledger == nil {
		return nil, errors.New("new sweeper: nil ledger")
	}
	if notifier == nil {
		return nil, errors.New("new sweeper: nil notifier")
	}

	sweeper := &Sweeper{
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		match:    FindMatches,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, option := range options {
		option(sweeper)
	}

	return sweeper, nil
}

// Sweep records and notifies every match not yet in the ledger.
//
// Failures are isolated per candidate. A ledger failure leaves the candidate
// eligible for the next sweep; a notifier failure is logged and the record
// stays. Sweep only fails when the snapshot cannot be read or ctx ends.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{ID: uuid.NewString()}

	snapshot, err := s.store.Snapshot(ctx)
	if err != nil {
		return report, fmt.Errorf("sweep %s snapshot: %w", report.ID, err)
	}
	candidates := s.match(snapshot)
	report.Candidates = len(candidates)

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("sweep %s: %w", report.ID, err)
		}

		record := NewMatchRecord(candidate, s.now())
		recorded, err := s.ledger.RecordIfAbsent(ctx, record)
		if err != nil {
			report.LedgerFailures++
			s.logger.WarnContext(ctx, "sweep ledger write failed",
				"sweep_id", report.ID,
				"match_key", string(record.Key),
				"error", err,
			)
			continue
		}
		if !recorded {
			continue
		}
		report.Recorded++

		if err := s.notifier.NotifyMatch(ctx, record); err != nil {
			report.NotifyFailures++
			s.logger.Log(ctx, notifyFailureLevel(err), "sweep notify failed",
				"sweep_id", report.ID,
				"match_key", string(record.Key),
				"member_a", record.MemberA,
				"member_b", record.MemberB,
				"error", err,
			)
			continue
		}
		report.Notified++
	}

	if report.Recorded > 0 || report.LedgerFailures > 0 {
		s.logger.InfoContext(ctx, "sweep completed",
			"sweep_id", report.ID,
			"candidates", report.Candidates,
			"recorded", report.Recorded,
			"notified", report.Notified,
			"ledger_failures", report.LedgerFailures,
			"notify_failures", report.NotifyFailures,
		)
	}

	return report, nil
}

// Plan lists current candidates with their ledger state without recording.
func (s *Sweeper) Plan(ctx context.Context) ([]PlannedMatch, error) {
	snapshot, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("plan sweep snapshot: %w", err)
	}

	candidates := s.match(snapshot)
	planned := make([]PlannedMatch, 0, len(candidates))
	for _, candidate := range candidates {
		key := candidate.Key()
		recorded, err := s.ledger.Exists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("plan sweep exists %s: %w", key, err)
		}
		planned = append(planned, PlannedMatch{Candidate: candidate, Key: key, Recorded: recorded})
	}

	return planned, nil
}

// notifyFailureLevel logs at info when every joined failure is an
// unreachable member, which is routine, and warns otherwise.
func notifyFailureLevel(err error) slog.Level {
	failures := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		failures = joined.Unwrap()
	}
	for _, failure := range failures {
		if !errors.Is(failure, ErrMemberUnreachable) {
			return slog.LevelWarn
		}
	}

	return slog.LevelInfo
}

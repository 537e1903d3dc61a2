// Package tradetest holds behavior suites shared by every trade store implementation.
package tradetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"ex-otogi-trade/internal/trade"
)

// Items builds catalog items with ordinals assigned by position.
func Items(ids ...string) []trade.Item {
	items := make([]trade.Item, 0, len(ids))
	for index, id := range ids {
		items = append(items, trade.Item{Ordinal: index + 1, ID: id})
	}

	return items
}

// RunListStoreSuite checks the ListStore contract against fresh stores.
func RunListStoreSuite(t *testing.T, newStore func(t *testing.T) trade.ListStore) {
	t.Helper()

	t.Run("add is idempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		items := Items("CAPE")

		first, err := store.AddItems(ctx, "u1", trade.KindWant, items)
		if err != nil {
			t.Fatalf("first add failed: %v", err)
		}
		if diff := cmp.Diff(trade.AddResult{Added: items}, first, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("first add mismatch (-want +got):\n%s", diff)
		}

		second, err := store.AddItems(ctx, "u1", trade.KindWant, items)
		if err != nil {
			t.Fatalf("second add failed: %v", err)
		}
		if diff := cmp.Diff(trade.AddResult{AlreadyPresent: items}, second, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("second add mismatch (-want +got):\n%s", diff)
		}

		list, err := store.MemberList(ctx, "u1")
		if err != nil {
			t.Fatalf("member list failed: %v", err)
		}
		if diff := cmp.Diff([]string{"CAPE"}, list.Wants.Sorted()); diff != "" {
			t.Fatalf("wants mismatch (-want +got):\n%s", diff)
		}
		if len(list.Haves) != 0 {
			t.Fatalf("haves = %v, want empty", list.Haves.Sorted())
		}
	})

	t.Run("add classifies mixed batch", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		if _, err := store.AddItems(ctx, "u1", trade.KindHave, Items("CAPE")); err != nil {
			t.Fatalf("seed add failed: %v", err)
		}

		items := Items("CAPE", "BELT")
		got, err := store.AddItems(ctx, "u1", trade.KindHave, items)
		if err != nil {
			t.Fatalf("add failed: %v", err)
		}
		want := trade.AddResult{Added: items[1:], AlreadyPresent: items[:1]}
		if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("add mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("kinds are independent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		if _, err := store.AddItems(ctx, "u1", trade.KindWant, Items("CAPE")); err != nil {
			t.Fatalf("add want failed: %v", err)
		}
		got, err := store.AddItems(ctx, "u1", trade.KindHave, Items("CAPE"))
		if err != nil {
			t.Fatalf("add have failed: %v", err)
		}
		if len(got.Added) != 1 {
			t.Fatalf("same item in other kind not added: %+v", got)
		}
	})

	t.Run("remove reports not found", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		if _, err := store.AddItems(ctx, "u1", trade.KindWant, Items("CAPE", "BELT")); err != nil {
			t.Fatalf("seed add failed: %v", err)
		}

		items := Items("BELT", "MASK")
		got, err := store.RemoveItems(ctx, "u1", trade.KindWant, items)
		if err != nil {
			t.Fatalf("remove failed: %v", err)
		}
		want := trade.RemoveResult{Removed: items[:1], NotFound: items[1:]}
		if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("remove mismatch (-want +got):\n%s", diff)
		}

		list, err := store.MemberList(ctx, "u1")
		if err != nil {
			t.Fatalf("member list failed: %v", err)
		}
		if diff := cmp.Diff([]string{"CAPE"}, list.Wants.Sorted()); diff != "" {
			t.Fatalf("wants mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("remove from unknown member", func(t *testing.T) {
		store := newStore(t)
		items := Items("CAPE")
		got, err := store.RemoveItems(context.Background(), "ghost", trade.KindHave, items)
		if err != nil {
			t.Fatalf("remove failed: %v", err)
		}
		if diff := cmp.Diff(trade.RemoveResult{NotFound: items}, got, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("remove mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("invalid batch applies nothing", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		batch := []trade.Item{{Ordinal: 1, ID: "CAPE"}, {Ordinal: 2, ID: ""}}
		if _, err := store.AddItems(ctx, "u1", trade.KindWant, batch); !errors.Is(err, trade.ErrUnknownItem) {
			t.Fatalf("add error = %v, want ErrUnknownItem", err)
		}
		if _, err := store.AddItems(ctx, "", trade.KindWant, Items("CAPE")); !errors.Is(err, trade.ErrInvalidMember) {
			t.Fatalf("add error = %v, want ErrInvalidMember", err)
		}
		if _, err := store.AddItems(ctx, "u1", trade.Kind(0), Items("CAPE")); !errors.Is(err, trade.ErrInvalidKind) {
			t.Fatalf("add error = %v, want ErrInvalidKind", err)
		}

		snapshot, err := store.Snapshot(ctx)
		if err != nil {
			t.Fatalf("snapshot failed: %v", err)
		}
		for _, list := range snapshot {
			if !list.Empty() {
				t.Fatalf("invalid batch left state behind: %+v", snapshot)
			}
		}
	})

	t.Run("snapshot is detached", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		if _, err := store.AddItems(ctx, "u1", trade.KindWant, Items("CAPE")); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if _, err := store.AddItems(ctx, "u2", trade.KindHave, Items("CAPE")); err != nil {
			t.Fatalf("add failed: %v", err)
		}

		snapshot, err := store.Snapshot(ctx)
		if err != nil {
			t.Fatalf("snapshot failed: %v", err)
		}
		if diff := cmp.Diff([]string{"u1", "u2"}, snapshot.MemberIDs()); diff != "" {
			t.Fatalf("members mismatch (-want +got):\n%s", diff)
		}

		snapshot["u1"].Wants["MASK"] = struct{}{}
		if _, err := store.AddItems(ctx, "u1", trade.KindWant, Items("BELT")); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if diff := cmp.Diff([]string{"CAPE", "MASK"}, snapshot["u1"].Wants.Sorted()); diff != "" {
			t.Fatalf("earlier snapshot changed (-want +got):\n%s", diff)
		}

		list, err := store.MemberList(ctx, "u1")
		if err != nil {
			t.Fatalf("member list failed: %v", err)
		}
		if diff := cmp.Diff([]string{"BELT", "CAPE"}, list.Wants.Sorted()); diff != "" {
			t.Fatalf("store affected by snapshot mutation (-want +got):\n%s", diff)
		}
	})

	t.Run("concurrent batches keep every item", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		ids := []string{"A", "B", "C", "D", "E", "F", "G", "H"}

		var wg sync.WaitGroup
		var added atomic.Int64
		for _, id := range ids {
			id := id
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := store.AddItems(ctx, "u1", trade.KindHave, Items(id, "SHARED"))
				if err != nil {
					t.Errorf("add %s failed: %v", id, err)
					return
				}
				added.Add(int64(len(result.Added)))
			}()
		}
		wg.Wait()

		if got := added.Load(); got != int64(len(ids)+1) {
			t.Fatalf("added count = %d, want %d", got, len(ids)+1)
		}
		list, err := store.MemberList(ctx, "u1")
		if err != nil {
			t.Fatalf("member list failed: %v", err)
		}
		if len(list.Haves) != len(ids)+1 {
			t.Fatalf("haves = %v", list.Haves.Sorted())
		}
	})
}

// RunLedgerSuite checks the Ledger contract against fresh ledgers.
func RunLedgerSuite(t *testing.T, newLedger func(t *testing.T) trade.Ledger) {
	t.Helper()

	record := trade.NewMatchRecord(trade.Candidate{
		MemberA: "u1",
		MemberB: "u2",
		AGets:   []string{"BELT"},
		BGets:   []string{"CAPE"},
	}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	t.Run("record once", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		exists, err := ledger.Exists(ctx, record.Key)
		if err != nil {
			t.Fatalf("exists failed: %v", err)
		}
		if exists {
			t.Fatal("fresh ledger reports record")
		}

		recorded, err := ledger.RecordIfAbsent(ctx, record)
		if err != nil {
			t.Fatalf("record failed: %v", err)
		}
		if !recorded {
			t.Fatal("first record not stored")
		}
		recorded, err = ledger.RecordIfAbsent(ctx, record)
		if err != nil {
			t.Fatalf("second record failed: %v", err)
		}
		if recorded {
			t.Fatal("second record stored again")
		}

		exists, err = ledger.Exists(ctx, record.Key)
		if err != nil {
			t.Fatalf("exists failed: %v", err)
		}
		if !exists {
			t.Fatal("recorded key not found")
		}

		records, err := ledger.Records(ctx)
		if err != nil {
			t.Fatalf("records failed: %v", err)
		}
		if diff := cmp.Diff([]trade.MatchRecord{record}, records); diff != "" {
			t.Fatalf("records mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("invalid record rejected", func(t *testing.T) {
		ledger := newLedger(t)
		invalid := record
		invalid.MemberB = invalid.MemberA
		if _, err := ledger.RecordIfAbsent(context.Background(), invalid); !errors.Is(err, trade.ErrInvalidRecord) {
			t.Fatalf("record error = %v, want ErrInvalidRecord", err)
		}
	})

	t.Run("concurrent record has one winner", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		const racers = 16
		var wg sync.WaitGroup
		var winners atomic.Int64
		for index := 0; index < racers; index++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				recorded, err := ledger.RecordIfAbsent(ctx, record)
				if err != nil {
					t.Errorf("record failed: %v", err)
					return
				}
				if recorded {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()

		if got := winners.Load(); got != 1 {
			t.Fatalf("winners = %d, want 1", got)
		}
	})
}

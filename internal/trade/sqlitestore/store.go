// Package sqlitestore persists trade lists and the match ledger in SQLite.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ex-otogi-trade/internal/trade"
)

//go:embed schema.sql
var schemaSQL string

// Schema versions:
// 0 - initial tables
// 1 - member lookup indexes on the ledger
const currentSchemaVersion = 1

// Store implements trade.ListStore and trade.Ledger on one SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the database at path and applies migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite store: %w", err)
	}

	// SQLite allows one writer; a single connection serializes transactions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version < 1 {
		if _, err := db.Exec(`
			CREATE INDEX IF NOT EXISTS idx_match_ledger_member_a ON match_ledger (member_a);
			CREATE INDEX IF NOT EXISTS idx_match_ledger_member_b ON match_ledger (member_b);
		`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("write user_version: %w", err)
	}

	return nil
}

// AddItems inserts the batch in one transaction.
func (s *Store) AddItems(
	ctx context.Context,
	memberID string,
	kind trade.Kind,
	items []trade.Item,
) (result trade.AddResult, err error) {
	if err := trade.ValidateBatch(memberID, kind, items); err != nil {
		return trade.AddResult{}, fmt.Errorf("sqlite add items: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return trade.AddResult{}, fmt.Errorf("sqlite add items begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	addedAt := s.now().UTC().UnixNano()
	for _, item := range items {
		res, execErr := tx.ExecContext(ctx, `
			INSERT INTO member_items (member_id, kind, item, added_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (member_id, kind, item) DO NOTHING
		`, memberID, kind.String(), item.ID, addedAt)
		if execErr != nil {
			return trade.AddResult{}, fmt.Errorf("sqlite add item %q: %w", item.ID, execErr)
		}
		affected, rowsErr := res.RowsAffected()
		if rowsErr != nil {
			return trade.AddResult{}, fmt.Errorf("sqlite add item %q rows: %w", item.ID, rowsErr)
		}
		if affected == 0 {
			result.AlreadyPresent = append(result.AlreadyPresent, item)
			continue
		}
		result.Added = append(result.Added, item)
	}

	if err := tx.Commit(); err != nil {
		return trade.AddResult{}, fmt.Errorf("sqlite add items commit: %w", err)
	}

	return result, nil
}

// RemoveItems deletes the batch in one transaction.
func (s *Store) RemoveItems(
	ctx context.Context,
	memberID string,
	kind trade.Kind,
	items []trade.Item,
) (result trade.RemoveResult, err error) {
	if err := trade.ValidateBatch(memberID, kind, items); err != nil {
		return trade.RemoveResult{}, fmt.Errorf("sqlite remove items: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return trade.RemoveResult{}, fmt.Errorf("sqlite remove items begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, item := range items {
		res, execErr := tx.ExecContext(ctx, `
			DELETE FROM member_items WHERE member_id = ? AND kind = ? AND item = ?
		`, memberID, kind.String(), item.ID)
		if execErr != nil {
			return trade.RemoveResult{}, fmt.Errorf("sqlite remove item %q: %w", item.ID, execErr)
		}
		affected, rowsErr := res.RowsAffected()
		if rowsErr != nil {
			return trade.RemoveResult{}, fmt.Errorf("sqlite remove item %q rows: %w", item.ID, rowsErr)
		}
		if affected == 0 {
			result.NotFound = append(result.NotFound, item)
			continue
		}
		result.Removed = append(result.Removed, item)
	}

	if err := tx.Commit(); err != nil {
		return trade.RemoveResult{}, fmt.Errorf("sqlite remove items commit: %w", err)
	}

	return result, nil
}

// MemberList reads one member's lists.
func (s *Store) MemberList(ctx context.Context, memberID string) (trade.MemberList, error) {
	snapshot, err := s.query(ctx, `
		SELECT member_id, kind, item FROM member_items WHERE member_id = ?
	`, memberID)
	if err != nil {
		return trade.MemberList{}, fmt.Errorf("sqlite member list: %w", err)
	}
	if list, ok := snapshot[memberID]; ok {
		return list, nil
	}

	return trade.MemberList{MemberID: memberID, Wants: trade.ItemSet{}, Haves: trade.ItemSet{}}, nil
}

// Snapshot reads every list with a single statement.
func (s *Store) Snapshot(ctx context.Context) (trade.Snapshot, error) {
	snapshot, err := s.query(ctx, `SELECT member_id, kind, item FROM member_items`)
	if err != nil {
		return nil, fmt.Errorf("sqlite snapshot: %w", err)
	}

	return snapshot, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) (trade.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshot := make(trade.Snapshot)
	for rows.Next() {
		var memberID, rawKind, item string
		if err := rows.Scan(&memberID, &rawKind, &item); err != nil {
			return nil, fmt.Errorf("scan member item: %w", err)
		}
		kind, err := trade.ParseKind(rawKind)
		if err != nil {
			return nil, err
		}

		list, ok := snapshot[memberID]
		if !ok {
			list = trade.MemberList{MemberID: memberID, Wants: trade.ItemSet{}, Haves: trade.ItemSet{}}
			snapshot[memberID] = list
		}
		list.Set(kind)[item] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member items: %w", err)
	}

	return snapshot, nil
}

// Exists reports whether key was recorded.
func (s *Store) Exists(ctx context.Context, key trade.MatchKey) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM match_ledger WHERE match_key = ?`, string(key)).Scan(&found)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("sqlite ledger exists: %w", err)
	default:
		return true, nil
	}
}

// RecordIfAbsent inserts record with a single conflict-ignoring statement.
func (s *Store) RecordIfAbsent(ctx context.Context, record trade.MatchRecord) (bool, error) {
	if err := record.Validate(); err != nil {
		return false, fmt.Errorf("sqlite ledger record: %w", err)
	}
	aItems, err := json.Marshal(record.AGets)
	if err != nil {
		return false, fmt.Errorf("sqlite ledger record a items: %w", err)
	}
	bItems, err := json.Marshal(record.BGets)
	if err != nil {
		return false, fmt.Errorf("sqlite ledger record b items: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO match_ledger (match_key, member_a, member_b, a_items, b_items, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (match_key) DO NOTHING
	`,
		string(record.Key),
		record.MemberA,
		record.MemberB,
		string(aItems),
		string(bItems),
		record.RecordedAt.UTC().UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite ledger record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite ledger record rows: %w", err)
	}

	return affected == 1, nil
}

// Records lists ledger entries in recording order.
func (s *Store) Records(ctx context.Context) ([]trade.MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_key, member_a, member_b, a_items, b_items, recorded_at
		FROM match_ledger
		ORDER BY recorded_at, seq
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite ledger records: %w", err)
	}
	defer rows.Close()

	records := make([]trade.MatchRecord, 0)
	for rows.Next() {
		var (
			key, memberA, memberB string
			aItems, bItems        string
			recordedAt            int64
		)
		if err := rows.Scan(&key, &memberA, &memberB, &aItems, &bItems, &recordedAt); err != nil {
			return nil, fmt.Errorf("sqlite ledger scan: %w", err)
		}

		record := trade.MatchRecord{
			Key:        trade.MatchKey(key),
			MemberA:    memberA,
			MemberB:    memberB,
			RecordedAt: time.Unix(0, recordedAt).UTC(),
		}
		if err := json.Unmarshal([]byte(aItems), &record.AGets); err != nil {
			return nil, fmt.Errorf("sqlite ledger decode a items: %w", err)
		}
		if err := json.Unmarshal([]byte(bItems), &record.BGets); err != nil {
			return nil, fmt.Errorf("sqlite ledger decode b items: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite ledger iterate: %w", err)
	}

	return records, nil
}

var (
	_ trade.ListStore = (*Store)(nil)
	_ trade.Ledger    = (*Store)(nil)
)

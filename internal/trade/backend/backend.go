// Package backend opens the configured list store and ledger pair.
package backend

import (
	"fmt"
	"strings"

	"ex-otogi-trade/internal/trade"
	"ex-otogi-trade/internal/trade/filestore"
	"ex-otogi-trade/internal/trade/sqlitestore"
)

const (
	// KindMemory keeps state in process memory only.
	KindMemory = "memory"
	// KindSQLite stores state in one SQLite database file.
	KindSQLite = "sqlite"
	// KindFile stores state as JSON documents inside a directory.
	KindFile = "file"
)

// Backend bundles the persistence used by one process.
type Backend struct {
	// Store holds member lists.
	Store trade.ListStore
	// Ledger holds recorded matches.
	Ledger trade.Ledger

	close func() error
}

// Open builds the backend named by kind; path is ignored for memory.
func Open(kind string, path string) (*Backend, error) {
	path = strings.TrimSpace(path)
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindMemory:
		return &Backend{
			Store:  trade.NewMemoryStore(),
			Ledger: trade.NewMemoryLedger(),
		}, nil
	case KindSQLite:
		if path == "" {
			return nil, fmt.Errorf("open sqlite backend: empty path")
		}
		store, err := sqlitestore.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		return &Backend{Store: store, Ledger: store, close: store.Close}, nil
	case KindFile:
		if path == "" {
			return nil, fmt.Errorf("open file backend: empty path")
		}
		store, err := filestore.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open file backend: %w", err)
		}
		return &Backend{Store: store, Ledger: store}, nil
	default:
		return nil, fmt.Errorf("open backend: unsupported kind %q", kind)
	}
}

// Close releases backend resources.
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}

	return b.close()
}

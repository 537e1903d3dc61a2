package trade_test

import (
	"testing"

	"ex-otogi-trade/internal/trade"
	"ex-otogi-trade/internal/trade/tradetest"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	tradetest.RunListStoreSuite(t, func(*testing.T) trade.ListStore {
		return trade.NewMemoryStore()
	})
}

func TestMemoryLedger(t *testing.T) {
	t.Parallel()

	tradetest.RunLedgerSuite(t, func(*testing.T) trade.Ledger {
		return trade.NewMemoryLedger()
	})
}

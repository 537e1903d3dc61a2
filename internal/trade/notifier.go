package trade

import "context"

// Notifier surfaces a newly recorded match to the involved parties.
//
// Delivery is best-effort. A returned error is logged by the sweeper and never
// rolls back the ledger record.
type Notifier interface {
	NotifyMatch(ctx context.Context, record MatchRecord) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, record MatchRecord) error

// NotifyMatch calls f.
func (f NotifierFunc) NotifyMatch(ctx context.Context, record MatchRecord) error {
	return f(ctx, record)
}

package sequence

import "context"

// CounterStore persists counters. Increment must be atomic per (kind, scope):
// concurrent callers never observe the same value.
type CounterStore interface {
	// Increment adds one to the scope's counter, creating it at 1, and
	// returns the new value. When the counter already holds ceiling it is
	// left unchanged and apperr.ErrCapacityExceeded is returned.
	Increment(ctx context.Context, kind Kind, s Scope, ceiling int) (int, error)
	Get(ctx context.Context, kind Kind, s Scope) (*Counter, error)
}

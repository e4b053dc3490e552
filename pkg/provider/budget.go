package provider

import "sync/atomic"

// RateBudget counts the calls a provider may still receive this cycle.
// Accounting is pessimistic: the caller consumes before the network request,
// so a failed call still spends budget. Exhaustion is a normal terminal
// state for a provider within a cycle, never an error.
type RateBudget struct {
	remaining atomic.Int64
	allowance atomic.Int64
}

// NewRateBudget returns a budget holding allowance calls.
func NewRateBudget(allowance int) *RateBudget {
	b := &RateBudget{}
	b.Reset(allowance)
	return b
}

// TryConsume atomically takes one call from the budget. It returns false
// without side effects once the budget is spent; remaining never goes
// negative regardless of concurrent callers.
func (b *RateBudget) TryConsume() bool {
	for {
		cur := b.remaining.Load()
		if cur <= 0 {
			return false
		}
		if b.remaining.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Reset restores the budget to allowance. Called once per provider per
// cycle by the orchestrator, never mid-cycle.
func (b *RateBudget) Reset(allowance int) {
	if allowance < 0 {
		allowance = 0
	}
	b.allowance.Store(int64(allowance))
	b.remaining.Store(int64(allowance))
}

// Remaining reports how many calls are left.
func (b *RateBudget) Remaining() int { return int(b.remaining.Load()) }

// Allowance reports the per-cycle allowance the budget was reset to.
func (b *RateBudget) Allowance() int { return int(b.allowance.Load()) }

// Exhausted reports whether the budget is spent.
func (b *RateBudget) Exhausted() bool { return b.remaining.Load() <= 0 }

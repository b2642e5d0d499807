// Package limits enforces stake limits for bet placement.
//
// WagerPals groups are informal play-money pools, but runaway stakes still
// ruin the fun: one member betting 10x everyone else dominates every pot.
// The limiter caps a user's total stake per event and their aggregate
// outstanding stake across all unresolved events.
package limits

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrEventStakeExceeded is returned when a bet would push the user's
	// total stake on one event beyond the per-event maximum.
	ErrEventStakeExceeded = errors.New("limits: per-event stake limit exceeded")

	// ErrOutstandingStakeExceeded is returned when a bet would push the
	// user's aggregate stake across active events beyond the outstanding
	// maximum.
	ErrOutstandingStakeExceeded = errors.New("limits: outstanding stake limit exceeded")
)

// StakeLimiter enforces per-event and aggregate stake limits.
// A non-positive limit disables that check.
type StakeLimiter struct {
	// MaxPerEvent is the maximum total stake one user may place on a
	// single event.
	MaxPerEvent decimal.Decimal

	// MaxOutstanding is the maximum aggregate stake one user may have
	// across all active (unresolved) events.
	MaxOutstanding decimal.Decimal
}

// NewStakeLimiter creates a limiter with the given per-event and
// outstanding limits.
func NewStakeLimiter(maxPerEvent, maxOutstanding decimal.Decimal) *StakeLimiter {
	return &StakeLimiter{
		MaxPerEvent:    maxPerEvent,
		MaxOutstanding: maxOutstanding,
	}
}

// Check validates a prospective bet of amount against the user's current
// stake on the event and their current outstanding stake.
func (l *StakeLimiter) Check(amount, eventStake, outstandingStake decimal.Decimal) error {
	if l == nil {
		return nil
	}
	if l.MaxPerEvent.IsPositive() && eventStake.Add(amount).GreaterThan(l.MaxPerEvent) {
		return ErrEventStakeExceeded
	}
	if l.MaxOutstanding.IsPositive() && outstandingStake.Add(amount).GreaterThan(l.MaxOutstanding) {
		return ErrOutstandingStakeExceeded
	}
	return nil
}

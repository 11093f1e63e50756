// Package confirmation implements the Confirmation Tracker described in
// spec §4.3: a set of pure functions over a chain profile and an observed
// confirmation count. It holds no state of its own and performs no I/O —
// callers (the payment flow state machine) supply the confirmation counts
// from whatever watches the chain.
package confirmation

import (
	"time"

	"github.com/arcsign/paymentcore/internal/chainprofile"
)

// Required returns the number of confirmations a network's profile
// requires before a transaction is considered final.
func Required(profile chainprofile.Profile) int {
	return profile.RequiredConfirmations
}

// IsConfirmed reports whether observed confirmations meet or exceed the
// network's requirement.
func IsConfirmed(profile chainprofile.Profile, confirmations int) bool {
	return confirmations >= profile.RequiredConfirmations
}

// Progress returns the confirmation progress as a percentage in [0, 100],
// clamped at both ends so a negative count or an over-confirmed
// transaction never produces an out-of-range value.
func Progress(profile chainprofile.Profile, confirmations int) int {
	if profile.RequiredConfirmations <= 0 {
		return 100
	}
	if confirmations <= 0 {
		return 0
	}
	pct := confirmations * 100 / profile.RequiredConfirmations
	if pct > 100 {
		return 100
	}
	return pct
}

// EstimateTimeToConfirmation estimates the wall-clock time remaining until
// a transaction with confirmations already observed reaches the network's
// required threshold, using the network's average block time. It returns
// zero once the requirement is already met.
func EstimateTimeToConfirmation(profile chainprofile.Profile, confirmations int) time.Duration {
	remaining := profile.RequiredConfirmations - confirmations
	if remaining <= 0 {
		return 0
	}
	return time.Duration(remaining) * time.Duration(profile.AverageBlockTimeMs) * time.Millisecond
}

// DetectReorg reports whether a newly observed confirmation count
// indicates a chain reorganization: the chain's confirmation count moving
// backward from what was previously recorded, which can only happen if
// blocks containing the transaction were orphaned.
func DetectReorg(previous, current int) bool {
	return current < previous
}

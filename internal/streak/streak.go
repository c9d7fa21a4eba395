// Package streak derives consecutive-day submission counters.
package streak

import (
	"time"

	"mood-tracker/internal/domain"
)

// ResetAfter is the elapsed time past which a streak starts over.
const ResetAfter = 24 * time.Hour

// Advance returns the state that results from accepting a submission at `at`.
//
// Rules, in order:
//   - no previous submission: the streak starts at 1
//   - more than ResetAfter elapsed (strictly): the streak restarts at 1
//   - day-of-month is exactly one greater than the previous one: the streak grows by 1
//   - anything else keeps the current count
//
// The day check compares day-of-month numbers only, so day 31 followed by day 1 is
// not treated as consecutive, and a skipped calendar day within 24h keeps the count.
// Callers must supply non-decreasing timestamps per user; earlier timestamps are not
// rejected and produce whatever the rules above yield.
func Advance(prev domain.StreakState, at time.Time) domain.StreakState {
	next := domain.StreakState{
		LastSubmission: &at,
		Count:          prev.Count,
	}

	switch {
	case prev.LastSubmission == nil:
		next.Count = 1
	case at.Sub(*prev.LastSubmission) > ResetAfter:
		next.Count = 1
	case at.Day() == prev.LastSubmission.Day()+1:
		next.Count = prev.Count + 1
	}
	return next
}

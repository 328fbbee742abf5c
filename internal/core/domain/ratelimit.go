package domain

import "time"

// RateLimitDecision is the outcome of a single sliding-window admission check.
type RateLimitDecision struct {
	Allowed bool
	// Remaining is the number of further requests the window admits after this one.
	Remaining int
	// RetryAfter is whole seconds until the oldest event leaves the window; zero when allowed.
	RetryAfter int
	// ResetAt is when the oldest event in the window expires.
	ResetAt time.Time
}

package rate

import "errors"

var (
	// ErrRateLimited reports that a key has exceeded its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrCounterUnavailable reports that the counter backend could not be reached.
	ErrCounterUnavailable = errors.New("rate counter unavailable")
)

package models

import "time"

// Validator is implemented by documents that check their own invariants before persistence.
type Validator interface {
	Validate() error
}

// Clock returns the current time. Components accept one so tests can pin time.
type Clock func() time.Time

// Now returns the wall clock time, or the pinned time when c is set.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

package engine

import (
	"errors"
	"fmt"
)

// PassQuota bounds how many times a repeating operation may run.
//
// The absent run retries deletes in passes, since a domain can be blocked
// by references from another domain that a later pass removes. The quota
// guarantees that loop terminates even when a delete can never succeed.
type PassQuota struct {
	limit   int
	current int
}

// NewPassQuota creates a quota allowing limit passes.
func NewPassQuota(limit int) *PassQuota {
	return &PassQuota{limit: limit}
}

// Check consumes one pass for label. It returns a *PassesExceededError
// once the limit is used up.
func (q *PassQuota) Check(label string) error {
	q.current++
	if q.current > q.limit {
		return &PassesExceededError{Label: label, Passes: q.current, Limit: q.limit}
	}
	return nil
}

// Current returns the number of passes consumed.
func (q *PassQuota) Current() int {
	return q.current
}

// Limit returns the maximum number of passes.
func (q *PassQuota) Limit() int {
	return q.limit
}

// PassesExceededError is returned when a PassQuota is used up.
type PassesExceededError struct {
	Label  string
	Passes int
	Limit  int
}

// Error implements the error interface.
func (e *PassesExceededError) Error() string {
	return fmt.Sprintf("%s exceeded pass quota: %d passes > %d limit", e.Label, e.Passes, e.Limit)
}

// IsPassesExceeded reports whether err is a PassesExceededError.
// Uses errors.As to handle wrapped errors.
func IsPassesExceeded(err error) bool {
	var pe *PassesExceededError
	return errors.As(err, &pe)
}

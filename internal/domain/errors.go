package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput signals a request the caller must fix (empty or oversized case text).
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded signals that the user's plan has no searches left in the current window.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrKeywordExtractionFailed signals that no keywords could be derived, so no search is possible.
	ErrKeywordExtractionFailed = errors.New("keyword extraction failed")
	// ErrSearchUnavailable signals that every keyword search failed.
	ErrSearchUnavailable = errors.New("search unavailable")
	// ErrDeadlineExceeded signals that the run deadline expired before a useful result existed.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrUnavailable signals an external service failure (5xx, 429, connection refused).
	ErrUnavailable = errors.New("service unavailable")
	// ErrTimeout signals an external call that did not answer in time.
	ErrTimeout = errors.New("service timeout")
)

// QuotaExceededError wraps ErrQuotaExceeded with the ledger state that caused the rejection.
type QuotaExceededError struct {
	UserID string
	Plan   string
	Used   int64
	Limit  int64
	Reason string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: user %s on plan %s: %s (%d/%d)",
		ErrQuotaExceeded.Error(), e.UserID, e.Plan, e.Reason, e.Used, e.Limit)
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }

// IsTransient reports whether an external call failure is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}

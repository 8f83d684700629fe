package errors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel kinds. Every business-rule failure of the swipe pipeline wraps one of
// these so callers can branch with errors.Is.
var (
	ErrValidation  = errors.New("validation error")
	ErrConflict    = errors.New("conflict")
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrCircuitOpen = errors.New("circuit breaker active")
)

// kindError carries a human-readable reason for a sentinel kind.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// Validation reports a malformed or disallowed request.
func Validation(msg string) error { return &kindError{kind: ErrValidation, msg: msg} }

// Conflict reports a duplicate or otherwise conflicting write.
func Conflict(msg string) error { return &kindError{kind: ErrConflict, msg: msg} }

// NotFound reports a missing entity.
func NotFound(msg string) error { return &kindError{kind: ErrNotFound, msg: msg} }

// RateLimitError is returned when the daily quota for the swipe kind is spent.
type RateLimitError struct {
	IsLike    bool
	Remaining int
	Limit     int
}

func (e *RateLimitError) Error() string {
	kind := "swipe"
	if e.IsLike {
		kind = "like"
	}
	return fmt.Sprintf("daily %s limit reached (%d/%d remaining)", kind, e.Remaining, e.Limit)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// CooldownError is returned while a consecutive-like circuit breaker is armed.
type CooldownError struct {
	Until time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("too many consecutive likes, try again after %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *CooldownError) Unwrap() error { return ErrCircuitOpen }

// Message returns the human-readable reason of a domain error, or a generic
// failure text carrying the underlying message.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if IsDomain(err) {
		return err.Error()
	}
	return "internal error: " + err.Error()
}

// IsDomain reports whether err is one of the business-rule kinds.
func IsDomain(err error) bool {
	for _, k := range []error{ErrValidation, ErrConflict, ErrNotFound, ErrRateLimited, ErrCircuitOpen} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

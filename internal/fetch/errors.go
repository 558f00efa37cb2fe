package fetch

import (
	"errors"
	"fmt"
)

// Error describes a failed fetch. Transient is only true while a retry is
// still possible; errors returned from Client.Get are permanent.
type Error struct {
	URL       string
	Status    int // 0 when no response was received
	Transient bool
	Attempts  int
	Err       error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s): %v", e.URL, e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// isTransient reports whether err is a retryable fetch failure.
func isTransient(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Transient
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}

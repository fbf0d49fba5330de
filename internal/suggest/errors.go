package suggest

import (
	"errors"
	"fmt"
)

var (
	// ErrOffsetDrift indicates the suggestion text could not be found in the current content.
	ErrOffsetDrift = errors.New("suggestion offset drift")

	// ErrMalformedRange indicates a range that fails the bounds invariants.
	ErrMalformedRange = errors.New("malformed suggestion range")

	// ErrSourceFetch indicates the suggestion source call failed.
	ErrSourceFetch = errors.New("suggestion source fetch failed")

	// ErrStaleBatch indicates a batch issued for content that has since changed.
	ErrStaleBatch = errors.New("stale suggestion batch")

	// ErrInvalidStatus indicates an unknown or disallowed target status.
	ErrInvalidStatus = errors.New("invalid suggestion status")

	// ErrDuplicateSuggestion indicates a record repeating an id or span already in the batch.
	ErrDuplicateSuggestion = errors.New("duplicate suggestion")
)

// RangeError describes a suggestion whose offsets could not be trusted.
type RangeError struct {
	ID     string
	Start  int
	End    int
	Reason string
	Err    error
}

func (e *RangeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%v: suggestion %q [%d,%d): %s", e.Err, e.ID, e.Start, e.End, e.Reason)
}

func (e *RangeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func rangeError(id string, start, end int, reason string, err error) *RangeError {
	return &RangeError{
		ID:     id,
		Start:  start,
		End:    end,
		Reason: reason,
		Err:    err,
	}
}

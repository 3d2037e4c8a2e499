package common

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyBatch    = errors.New("empty batch")
	ErrBatchTooLarge = errors.New("batch too large")
)

// DefaultBatchLimit bounds batch entry points when no limit is configured.
const DefaultBatchLimit = 100

// CheckBatch validates the size of a batch against limit. A zero limit falls
// back to DefaultBatchLimit.
func CheckBatch(limit, size int) error {
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	if size == 0 {
		return ErrEmptyBatch
	}
	if size > limit {
		return fmt.Errorf("%w: %d entries exceeds limit %d", ErrBatchTooLarge, size, limit)
	}
	return nil
}

// BatchError reports the failing entry of an all-or-nothing batch.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch entry %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// WrapBatch attaches the entry index to err. Nil errors pass through.
func WrapBatch(index int, err error) error {
	if err == nil {
		return nil
	}
	return &BatchError{Index: index, Err: err}
}

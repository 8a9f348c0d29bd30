package service

import (
	"errors"
	"fmt"
)

var (
	ErrStoreRead     = errors.New("store read failed")
	ErrStoreWrite    = errors.New("store write failed")
	ErrRunInProgress = errors.New("a reconciliation pass is already running")
)

// CollectionError reports a collection whose pass was aborted by a read failure.
type CollectionError struct {
	Collection string
	Err        error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collection %s: %v", e.Collection, e.Err)
}

func (e *CollectionError) Unwrap() []error {
	return []error{ErrStoreRead, e.Err}
}

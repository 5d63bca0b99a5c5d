package contracts

import (
	"errors"
	"fmt"
)

// ValidationError rejects a request before any I/O happens
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// StorageError wraps a store failure; the active transaction was rolled back
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PayloadTooLargeError means a batch exceeded a configured or server-side
// size limit. Operators should raise the limit or resubmit in smaller chunks;
// nothing was written.
type PayloadTooLargeError struct {
	Rows  int
	Limit int
	Err   error
}

func (e *PayloadTooLargeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payload too large (%d rows): %v; raise the server size limits or use smaller chunks", e.Rows, e.Err)
	}
	return fmt.Sprintf("payload too large: %d rows exceeds limit of %d; split the batch or raise INGEST_MAX_BULK_ROWS", e.Rows, e.Limit)
}

func (e *PayloadTooLargeError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

// IsPayloadTooLarge reports whether err is (or wraps) a PayloadTooLargeError
func IsPayloadTooLarge(err error) bool {
	var p *PayloadTooLargeError
	return errors.As(err, &p)
}

// IsStorage reports whether err is (or wraps) a StorageError
func IsStorage(err error) bool {
	var s *StorageError
	return errors.As(err, &s)
}

package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when a request carries missing or invalid
	// credentials.
	ErrUnauthorized = errors.New("missing or invalid credentials")

	// ErrNotFound is returned when an upload record does not exist or does
	// not belong to the caller.
	ErrNotFound = errors.New("file not found")
)

// ValidationError rejects an entire upload batch because one file's declared
// MIME type does not match its sniffed content type. Nothing from the batch
// is persisted.
type ValidationError struct {
	Filename string
	Declared string
	Sniffed  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid file type for %s: declared %s but content sniffs as %s",
		e.Filename, e.Declared, e.Sniffed)
}

// StorageError wraps a payload I/O failure. The batch it occurred in is
// rolled back; the payload may remain on the backend but is never referenced
// by any record.
type StorageError struct {
	Hash string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store payload %s: %v", e.Hash, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

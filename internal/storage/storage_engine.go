package storage

import "context"

type Engine interface {
	// PutObject stores the raw payload identified by its SHA-256 hexadecimal
	// digest. Storing a payload under a digest that is already present is a
	// no-op; the existing payload is left untouched.
	PutObject(ctx context.Context, hashHex string, data []byte) error

	// GetObject retrieves the raw payload previously stored under the given
	// SHA-256 hexadecimal digest.
	GetObject(ctx context.Context, hashHex string) ([]byte, error)

	// DeleteObject removes the payload associated with the given digest.
	// Deleting a digest that is not present is not an error.
	DeleteObject(ctx context.Context, hashHex string) error
}

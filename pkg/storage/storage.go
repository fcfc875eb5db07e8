// Package storage abstracts the persistence backend behind a small
// byte-oriented interface so repositories stay unaware of whether they
// talk to local disk or S3.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound reports a key with no stored value. Backends wrap it so
// callers can test with errors.Is regardless of the implementation.
var ErrNotFound = errors.New("not found")

// Storage reads and writes opaque documents under slash-separated keys.
// Write must be atomic: a reader never observes a partially written value.
type Storage interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	// List returns the keys directly under prefix, non-recursively.
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
}

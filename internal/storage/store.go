// Package storage provides durable key→document stores for cached cube data.
// Two conforming implementations are included: a one-file-per-key filesystem
// store and a SQLite-backed store.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no document exists for the key.
var ErrNotFound = errors.New("document not found")

// CorruptError indicates a persisted document could not be read back.
// Callers treat the document as missing and regenerate it where possible.
type CorruptError struct {
	Key string
	Err error
}

// Error implements the error interface for CorruptError.
func (e *CorruptError) Error() string {
	return fmt.Sprintf("document %q corrupt: %v", e.Key, e.Err)
}

// Unwrap returns the underlying read error.
func (e *CorruptError) Unwrap() error {
	return e.Err
}

// IsCorrupt returns true if the error is a CorruptError.
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}

// Store is a durable key→document store. Put must be atomic per key: a
// concurrent reader never observes a partially written document.
type Store interface {
	Put(ctx context.Context, key string, doc []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)

	// Keys lists every stored key, computed fresh on each call so documents
	// written by another process run are visible.
	Keys(ctx context.Context) ([]string, error)

	Delete(ctx context.Context, key string) error
	Close() error
}

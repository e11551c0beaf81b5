// Package storage holds the byte stores backing uploaded images.
//
// Keys are opaque to every backend. Callers build them with NewBlobKey: every
// upload gets a fresh key under the owning resource type, so a blob is never
// shared and can be released as soon as its owner stops referencing it.
package storage

import (
	"context"
	"errors"

	"kinship/internal/observability"

	"github.com/google/uuid"
)

// ErrBlobNotFound is returned by Get when no blob exists under the key.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore stores image bytes by key.
type BlobStore interface {
	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the bytes under key or ErrBlobNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Name identifies the backend in logs and metrics.
	Name() string
}

// NewBlobKey returns a fresh key for a blob owned by the given resource type, e.g. posts/<uuid>.
func NewBlobKey(resource string) string {
	return resource + "/" + uuid.NewString()
}

type instrumented struct {
	BlobStore
}

// Instrumented wraps s so every operation is counted in the blob metrics.
func Instrumented(s BlobStore) BlobStore {
	return &instrumented{s}
}

func (s *instrumented) Put(ctx context.Context, key string, data []byte) error {
	err := s.BlobStore.Put(ctx, key, data)
	observability.RecordBlobOperation(s.Name(), "put", err)
	return err
}

func (s *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.BlobStore.Get(ctx, key)
	if errors.Is(err, ErrBlobNotFound) {
		observability.BlobOperations.WithLabelValues(s.Name(), "get", "miss").Inc()
		return nil, err
	}
	observability.RecordBlobOperation(s.Name(), "get", err)
	return data, err
}

func (s *instrumented) Delete(ctx context.Context, key string) error {
	err := s.BlobStore.Delete(ctx, key)
	observability.RecordBlobOperation(s.Name(), "delete", err)
	return err
}

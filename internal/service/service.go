// Package service holds the business rules of kinship: the identity
// directory, the content store, the relationship ledger, the authorization
// guard and the feed composer.
//
// Every mutation of a single resource runs under the in-process key lock for
// that resource and inside one database transaction that re-reads the row
// with a row lock. Blob writes happen outside the transaction: new blobs are
// written before it begins and removed again if it fails, old blobs are
// released after it commits.
package service

import (
	"context"
	"fmt"
	"sync"

	"kinship/internal/middleware"
	"kinship/internal/observability"
	"kinship/internal/repository"
	"kinship/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var callLog = observability.NewStructuredLogger()

// Deps is what every service is built from.
type Deps struct {
	Repos repository.Repositories
	Tx    repository.Transactor
	Blobs storage.BlobStore
	Locks *KeyedMutex
	// MaxUploadBytes bounds uploaded images. Zero means DefaultMaxUploadBytes.
	MaxUploadBytes int64
	// PasswordCost is the bcrypt cost. Zero means bcrypt.DefaultCost.
	PasswordCost int
}

func (d Deps) withDefaults() Deps {
	if d.Locks == nil {
		d.Locks = NewKeyedMutex()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if d.PasswordCost == 0 {
		d.PasswordCost = bcrypt.DefaultCost
	}
	return d
}

// KeyedMutex is a set of mutexes addressed by string key. Entries are
// reference counted and dropped once nobody holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns the matching unlock function.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len returns the number of keys currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func postLockKey(id uint) string    { return fmt.Sprintf("post:%d", id) }
func commentLockKey(id uint) string { return fmt.Sprintf("comment:%d", id) }
func replyLockKey(id uint) string   { return fmt.Sprintf("reply:%d", id) }
func userLockKey(id uint) string    { return fmt.Sprintf("user:%d", id) }

// releaseBlobs deletes blobs that are no longer referenced. Failures only
// leak storage, so they are logged and swallowed.
func releaseBlobs(ctx context.Context, blobs storage.BlobStore, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := blobs.Delete(ctx, key); err != nil {
			middleware.Logger.WarnContext(ctx, "failed to release image blob",
				"key", key,
				"backend", blobs.Name(),
				"error", err,
			)
		}
	}
}

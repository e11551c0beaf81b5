package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// EncryptedBlobStore encrypts blobs with an age X25519 key before handing
// them to the wrapped store.
type EncryptedBlobStore struct {
	inner     BlobStore
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewEncryptedBlobStore wraps inner with the identity encoded as AGE-SECRET-KEY-1...
func NewEncryptedBlobStore(inner BlobStore, secretKey string) (*EncryptedBlobStore, error) {
	identity, err := age.ParseX25519Identity(strings.TrimSpace(secretKey))
	if err != nil {
		return nil, fmt.Errorf("invalid BLOB_ENCRYPTION_KEY: %w", err)
	}
	return &EncryptedBlobStore{
		inner:     inner,
		identity:  identity,
		recipient: identity.Recipient(),
	}, nil
}

func (s *EncryptedBlobStore) Put(ctx context.Context, key string, data []byte) error {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.recipient)
	if err != nil {
		return fmt.Errorf("failed to create encryptor: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to encrypt blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize encryption: %w", err)
	}
	return s.inner.Put(ctx, key, buf.Bytes())
}

func (s *EncryptedBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	r, err := age.Decrypt(bytes.NewReader(raw), s.identity)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt blob: %w", err)
	}
	return io.ReadAll(r)
}

func (s *EncryptedBlobStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *EncryptedBlobStore) Name() string { return s.inner.Name() + "+age" }

var _ BlobStore = (*EncryptedBlobStore)(nil)

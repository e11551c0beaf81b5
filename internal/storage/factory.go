package storage

import (
	"context"
	"fmt"

	"kinship/internal/config"

	"gorm.io/gorm"
)

// NewBlobStoreFromConfig creates the BlobStore selected by BLOB_STORE, wrapped
// with encryption when BLOB_ENCRYPTION_KEY is set.
func NewBlobStoreFromConfig(ctx context.Context, cfg *config.Config, db *gorm.DB) (BlobStore, error) {
	var store BlobStore

	switch cfg.BlobStore {
	case "", "database":
		if db == nil {
			return nil, fmt.Errorf("database blob store requires a database connection")
		}
		store = NewDatabaseBlobStore(db)
	case "memory":
		store = NewMemoryBlobStore()
	case "filesystem":
		if cfg.BlobFSRoot == "" {
			return nil, fmt.Errorf("filesystem blob store requires BLOB_FS_ROOT to be set")
		}
		fsStore, err := NewFileSystemBlobStore(cfg.BlobFSRoot)
		if err != nil {
			return nil, err
		}
		store = fsStore
	case "s3":
		s3Store, err := NewS3BlobStore(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Prefix:          "images",
		})
		if err != nil {
			return nil, err
		}
		store = s3Store
	default:
		return nil, fmt.Errorf("unknown blob store type: %s", cfg.BlobStore)
	}

	if cfg.BlobEncryptionKey != "" {
		enc, err := NewEncryptedBlobStore(store, cfg.BlobEncryptionKey)
		if err != nil {
			return nil, err
		}
		store = enc
	}

	return Instrumented(store), nil
}

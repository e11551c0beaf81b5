package storage

import (
	"context"
	"errors"
	"fmt"

	"kinship/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseBlobStore keeps blobs in the image_blobs table next to the metadata.
type DatabaseBlobStore struct {
	db *gorm.DB
}

// NewDatabaseBlobStore creates a store on db.
func NewDatabaseBlobStore(db *gorm.DB) *DatabaseBlobStore {
	return &DatabaseBlobStore{db: db}
}

func (s *DatabaseBlobStore) Put(ctx context.Context, key string, data []byte) error {
	blob := models.ImageBlob{Key: key, Data: data}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data"}),
	}).Create(&blob).Error
	if err != nil {
		return fmt.Errorf("store blob %s: %w", key, err)
	}
	return nil
}

func (s *DatabaseBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var blob models.ImageBlob
	err := s.db.WithContext(ctx).Where(clause.Eq{Column: "key", Value: key}).First(&blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load blob %s: %w", key, err)
	}
	return blob.Data, nil
}

func (s *DatabaseBlobStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where(clause.Eq{Column: "key", Value: key}).Delete(&models.ImageBlob{}).Error; err != nil {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

func (s *DatabaseBlobStore) Name() string { return "database" }

var _ BlobStore = (*DatabaseBlobStore)(nil)

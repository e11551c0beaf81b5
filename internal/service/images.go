package service

import (
	"context"
	"errors"

	"kinship/internal/models"
	"kinship/internal/storage"
)

// Blob key prefixes per owning resource type.
const (
	postImagePrefix = "posts"
	userImagePrefix = "users"
)

// stagedImage is an upload already written to the blob store, waiting for
// the metadata transaction that will reference it.
type stagedImage struct {
	key    string
	upload *models.ImageUpload
}

func stageImage(ctx context.Context, blobs storage.BlobStore, prefix string, upload *models.ImageUpload) (*stagedImage, error) {
	if upload == nil {
		return nil, nil
	}
	key := storage.NewBlobKey(prefix)
	if err := blobs.Put(ctx, key, upload.Data); err != nil {
		return nil, models.NewInternalError(err)
	}
	return &stagedImage{key: key, upload: upload}, nil
}

func (s *stagedImage) applyTo(fields *models.ImageFields, derivedURL string) {
	fields.UseUpload(s.key, s.upload.Name, s.upload.ContentType, s.upload.Size(), derivedURL)
}

// discard removes the staged blob after the transaction that should have
// referenced it failed.
func (s *stagedImage) discard(ctx context.Context, blobs storage.BlobStore) {
	if s != nil {
		releaseBlobs(ctx, blobs, s.key)
	}
}

// readImage serves the blob referenced by the image fields load returns. A
// blob missing on the first try may have been swapped out by a concurrent
// edit, so the metadata is re-read once before giving up.
func readImage(ctx context.Context, blobs storage.BlobStore, resource string, id uint, load func(context.Context) (models.ImageFields, error)) (*models.ImageContent, error) {
	for attempt := 0; attempt < 2; attempt++ {
		fields, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if !fields.HasUpload() {
			return nil, models.NewNotFoundError(resource+" image", id)
		}
		data, err := blobs.Get(ctx, fields.ImageKey)
		if errors.Is(err, storage.ErrBlobNotFound) {
			continue
		}
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		return &models.ImageContent{
			Data:        data,
			ContentType: contentTypeOrDefault(fields.ImageType),
			Name:        fields.ImageName,
		}, nil
	}
	return nil, models.NewNotFoundError(resource+" image", id)
}

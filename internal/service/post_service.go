package service

import (
	"context"
	"strings"

	"kinship/internal/models"
	"kinship/internal/observability"
	"kinship/internal/repository"
	"kinship/internal/storage"
)

type PostService struct {
	repos     repository.Repositories
	tx        repository.Transactor
	blobs     storage.BlobStore
	locks     *KeyedMutex
	guard     *Guard
	maxUpload int64
}

// CreatePostInput carries a new post. ImageURL and Upload are mutually exclusive.
type CreatePostInput struct {
	ActorID     uint
	Description string
	ImageURL    string
	Upload      *models.ImageUpload
}

// EditPostInput replaces a post's description and image. An empty ImageURL
// without an Upload removes the image, except when ImageURL is the post's own
// derived image reference, which keeps the current upload.
type EditPostInput struct {
	ActorID     uint
	PostID      uint
	Description string
	ImageURL    string
	Upload      *models.ImageUpload
}

type DeletePostInput struct {
	ActorID uint
	PostID  uint
}

func NewPostService(d Deps) *PostService {
	d = d.withDefaults()
	return &PostService{
		repos:     d.Repos,
		tx:        d.Tx,
		blobs:     d.Blobs,
		locks:     d.Locks,
		guard:     NewGuard(),
		maxUpload: d.MaxUploadBytes,
	}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if err := validateDescription(in.Description); err != nil {
		return nil, err
	}
	if err := validateImage(in.ImageURL, in.Upload, s.maxUpload); err != nil {
		return nil, err
	}

	staged, err := stageImage(ctx, s.blobs, postImagePrefix, in.Upload)
	if err != nil {
		return nil, err
	}

	var postID uint
	err = s.tx.InTx(ctx, func(r repository.Repositories) error {
		ok, err := r.Users.Exists(ctx, in.ActorID)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewNotFoundError("User", in.ActorID)
		}

		post := &models.Post{UserID: in.ActorID, Description: in.Description}
		if url := strings.TrimSpace(in.ImageURL); url != "" {
			post.UseExternalURL(url)
		}
		if err := r.Posts.Create(ctx, post); err != nil {
			return err
		}
		if staged != nil {
			// The derived reference needs the id, so it is written in a second statement.
			staged.applyTo(&post.ImageFields, models.PostImagePath(post.ID))
			if err := r.Posts.Update(ctx, post); err != nil {
				return err
			}
		}
		postID = post.ID
		return nil
	})
	if err != nil {
		staged.discard(ctx, s.blobs)
		return nil, err
	}
	return s.repos.Posts.GetByID(ctx, postID)
}

func (s *PostService) EditPost(ctx context.Context, in EditPostInput) (*models.Post, error) {
	if err := validateDescription(in.Description); err != nil {
		return nil, err
	}
	if err := validateImage(in.ImageURL, in.Upload, s.maxUpload); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(postLockKey(in.PostID))
	defer unlock()

	staged, err := stageImage(ctx, s.blobs, postImagePrefix, in.Upload)
	if err != nil {
		return nil, err
	}

	var oldKey, newKey string
	err = s.tx.InTx(ctx, func(r repository.Repositories) error {
		post, err := r.Posts.GetForUpdate(ctx, in.PostID)
		if err != nil {
			return err
		}
		if err := s.guard.CanMutatePost(in.ActorID, post); err != nil {
			return err
		}

		oldKey = post.ImageKey
		post.Description = in.Description
		url := strings.TrimSpace(in.ImageURL)
		switch {
		case staged != nil:
			staged.applyTo(&post.ImageFields, models.PostImagePath(post.ID))
		case post.HasUpload() && url == post.ImageURL:
			// unchanged upload
		default:
			post.UseExternalURL(url)
		}
		newKey = post.ImageKey
		return r.Posts.Update(ctx, post)
	})
	if err != nil {
		staged.discard(ctx, s.blobs)
		return nil, err
	}
	if oldKey != newKey {
		releaseBlobs(ctx, s.blobs, oldKey)
	}
	return s.repos.Posts.GetByID(ctx, in.PostID)
}

func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	span, ctx := observability.StartResourceSpan(ctx, "PostService", "DeletePost", "Post", in.PostID)
	defer span.End()
	callLog.LogServiceCall(ctx, "PostService", "DeletePost", map[string]interface{}{"post_id": in.PostID, "actor_id": in.ActorID})

	unlock := s.locks.Lock(postLockKey(in.PostID))
	defer unlock()

	var blobKey string
	err := s.tx.InTx(ctx, func(r repository.Repositories) error {
		post, err := r.Posts.GetForUpdate(ctx, in.PostID)
		if err != nil {
			return err
		}
		if err := s.guard.CanMutatePost(in.ActorID, post); err != nil {
			return err
		}
		blobKey = post.ImageKey
		return deletePosts(ctx, r, []uint{post.ID})
	})
	if err != nil {
		span.SetError(err)
		return err
	}
	releaseBlobs(ctx, s.blobs, blobKey)
	return nil
}

func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	return s.repos.Posts.GetByID(ctx, id)
}

func (s *PostService) ListAll(ctx context.Context, page repository.Page) ([]*models.Post, error) {
	return s.repos.Posts.List(ctx, page)
}

func (s *PostService) ListByAuthor(ctx context.Context, username string, page repository.Page) ([]*models.Post, error) {
	author, err := resolveUser(ctx, s.repos.Users, username)
	if err != nil {
		return nil, err
	}
	return s.repos.Posts.ListByAuthor(ctx, author.ID, page)
}

// ListExcludingAuthor returns every post not owned by username. An unknown
// username excludes nobody.
func (s *PostService) ListExcludingAuthor(ctx context.Context, username string, page repository.Page) ([]*models.Post, error) {
	author, err := s.repos.Users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if author == nil {
		return s.repos.Posts.List(ctx, page)
	}
	return s.repos.Posts.ListExcludingAuthor(ctx, author.ID, page)
}

func (s *PostService) CountByAuthor(ctx context.Context, username string) (int64, error) {
	author, err := resolveUser(ctx, s.repos.Users, username)
	if err != nil {
		return 0, err
	}
	return s.repos.Posts.CountByAuthor(ctx, author.ID)
}

// GetImage returns the uploaded image of a post.
func (s *PostService) GetImage(ctx context.Context, postID uint) (*models.ImageContent, error) {
	return readImage(ctx, s.blobs, "Post", postID, func(ctx context.Context) (models.ImageFields, error) {
		post, err := s.repos.Posts.GetByID(ctx, postID)
		if err != nil {
			return models.ImageFields{}, err
		}
		return post.ImageFields, nil
	})
}

// resolveUser maps a missing username to NotFound.
func resolveUser(ctx context.Context, users repository.UserRepository, username string) (*models.User, error) {
	user, err := users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUserNotFoundError(username)
	}
	return user, nil
}

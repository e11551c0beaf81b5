package service

import (
	"context"
	"strings"

	"kinship/internal/cache"
	"kinship/internal/models"
	"kinship/internal/observability"
	"kinship/internal/repository"
	"kinship/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	repos        repository.Repositories
	tx           repository.Transactor
	blobs        storage.BlobStore
	locks        *KeyedMutex
	maxUpload    int64
	passwordCost int
}

type CreateUserInput struct {
	Username string
	Email    string
	Password string
}

// UpdateCredentialsInput changes any of username, email and password. Empty
// fields are left alone. CurrentPassword is always required.
type UpdateCredentialsInput struct {
	UserID          uint
	Username        string
	Email           string
	CurrentPassword string
	NewPassword     string
}

// UpdateProfileInput changes the bio (nil keeps it) and the profile picture.
// A non-empty ImageURL switches to URL mode, an Upload switches to upload
// mode, and neither keeps the current picture.
type UpdateProfileInput struct {
	UserID   uint
	Bio      *string
	ImageURL string
	Upload   *models.ImageUpload
}

func NewUserService(d Deps) *UserService {
	d = d.withDefaults()
	return &UserService{
		repos:        d.Repos,
		tx:           d.Tx,
		blobs:        d.Blobs,
		locks:        d.Locks,
		maxUpload:    d.MaxUploadBytes,
		passwordCost: d.PasswordCost,
	}
}

func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	if err := s.ensureAvailable(ctx, 0, in.Username, in.Email); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.passwordCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	user := &models.User{Username: in.Username, Email: in.Email, Password: string(hash)}
	if err := s.repos.Users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ensureAvailable fails with Conflict when username or email belongs to a
// user other than selfID. The unique indexes remain the final arbiter.
func (s *UserService) ensureAvailable(ctx context.Context, selfID uint, username, email string) error {
	if username != "" {
		existing, err := s.repos.Users.FindByUsername(ctx, username)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != selfID {
			return models.NewConflictError("Username already taken")
		}
	}
	if email != "" {
		existing, err := s.repos.Users.FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != selfID {
			return models.NewConflictError("Email already registered")
		}
	}
	return nil
}

func (s *UserService) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.repos.Users.FindByUsername(ctx, username)
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.repos.Users.FindByEmail(ctx, email)
}

// GetByID returns a user profile through the cache. Follow counts are
// always read live.
func (s *UserService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	cached, err := cache.Aside(ctx, cache.UserKey(id), cache.UserTTL, func(ctx context.Context) (*models.User, error) {
		return s.repos.Users.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return s.withLiveCounts(ctx, cached)
}

// GetByUsername is GetByID keyed by username.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	cached, err := cache.Aside(ctx, cache.UserByNameKey(username), cache.UserTTL, func(ctx context.Context) (*models.User, error) {
		return resolveUser(ctx, s.repos.Users, username)
	})
	if err != nil {
		return nil, err
	}
	return s.withLiveCounts(ctx, cached)
}

func (s *UserService) withLiveCounts(ctx context.Context, cached *models.User) (*models.User, error) {
	user := *cached
	followers, err := s.repos.Relations.CountByTarget(ctx, models.RelationFollow, user.ID)
	if err != nil {
		return nil, err
	}
	following, err := s.repos.Relations.CountByActor(ctx, models.RelationFollow, user.ID)
	if err != nil {
		return nil, err
	}
	user.FollowersCount = followers
	user.FollowingCount = following
	return &user, nil
}

func (s *UserService) List(ctx context.Context, page repository.Page) ([]*models.User, error) {
	return s.repos.Users.List(ctx, page)
}

// ListExcept lists every user other than username. An unknown username
// excludes nobody.
func (s *UserService) ListExcept(ctx context.Context, username string, page repository.Page) ([]*models.User, error) {
	user, err := s.repos.Users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return s.repos.Users.List(ctx, page)
	}
	return s.repos.Users.ListExcept(ctx, user.ID, page)
}

// Authenticate checks a username and password pair.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.repos.Users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	return user, nil
}

func (s *UserService) UpdateCredentials(ctx context.Context, in UpdateCredentialsInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username != "" {
		if err := validateUsername(in.Username); err != nil {
			return nil, err
		}
	}
	if in.Email != "" {
		if err := validateEmail(in.Email); err != nil {
			return nil, err
		}
	}
	if in.NewPassword != "" {
		if err := validatePassword(in.NewPassword); err != nil {
			return nil, err
		}
	}

	unlock := s.locks.Lock(userLockKey(in.UserID))
	defer unlock()

	if err := s.ensureAvailable(ctx, in.UserID, in.Username, in.Email); err != nil {
		return nil, err
	}

	var oldUsername string
	err := s.tx.InTx(ctx, func(r repository.Repositories) error {
		user, err := r.Users.GetForUpdate(ctx, in.UserID)
		if err != nil {
			return err
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.CurrentPassword)); err != nil {
			return models.NewUnauthorizedError("Current password is incorrect")
		}
		oldUsername = user.Username

		if in.Username != "" {
			user.Username = in.Username
		}
		if in.Email != "" {
			user.Email = in.Email
		}
		if in.NewPassword != "" {
			if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.NewPassword)) == nil {
				return models.NewInvalidOperationError("New password must differ from the current password")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.passwordCost)
			if err != nil {
				return models.NewInternalError(err)
			}
			user.Password = string(hash)
		}
		return r.Users.Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidateUser(ctx, in.UserID, oldUsername)
	if in.Username != "" {
		cache.Invalidate(ctx, cache.UserByNameKey(in.Username))
	}
	return s.repos.Users.GetByID(ctx, in.UserID)
}

func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	if err := validateImage(in.ImageURL, in.Upload, s.maxUpload); err != nil {
		return nil, err
	}
	if in.Bio != nil {
		if err := validateDescription(*in.Bio); err != nil {
			return nil, err
		}
	}

	unlock := s.locks.Lock(userLockKey(in.UserID))
	defer unlock()

	staged, err := stageImage(ctx, s.blobs, userImagePrefix, in.Upload)
	if err != nil {
		return nil, err
	}

	var oldKey, newKey, username string
	err = s.tx.InTx(ctx, func(r repository.Repositories) error {
		user, err := r.Users.GetForUpdate(ctx, in.UserID)
		if err != nil {
			return err
		}
		username = user.Username
		oldKey = user.ImageKey
		if in.Bio != nil {
			user.Bio = *in.Bio
		}
		if staged != nil {
			staged.applyTo(&user.ImageFields, models.UserImagePath(user.ID))
		} else if url := strings.TrimSpace(in.ImageURL); url != "" {
			user.UseExternalURL(url)
		}
		newKey = user.ImageKey
		return r.Users.Update(ctx, user)
	})
	if err != nil {
		staged.discard(ctx, s.blobs)
		return nil, err
	}
	if oldKey != newKey {
		releaseBlobs(ctx, s.blobs, oldKey)
	}
	cache.InvalidateUser(ctx, in.UserID, username)
	return s.repos.Users.GetByID(ctx, in.UserID)
}

// GetImage returns the uploaded profile picture of a user.
func (s *UserService) GetImage(ctx context.Context, userID uint) (*models.ImageContent, error) {
	return readImage(ctx, s.blobs, "User", userID, func(ctx context.Context) (models.ImageFields, error) {
		user, err := s.repos.Users.GetByID(ctx, userID)
		if err != nil {
			return models.ImageFields{}, err
		}
		return user.ImageFields, nil
	})
}

// Delete removes the user named username together with everything they own
// or wrote, in one transaction.
func (s *UserService) Delete(ctx context.Context, username string) error {
	span, ctx := observability.StartServiceSpan(ctx, "UserService", "Delete")
	defer span.End()
	callLog.LogServiceCall(ctx, "UserService", "Delete", map[string]interface{}{"username": username})

	user, err := resolveUser(ctx, s.repos.Users, username)
	if err != nil {
		return err
	}
	span.AddAttributes(observability.ResourceKey.String("User"), observability.ResourceIDKey.Int64(int64(user.ID)))

	unlock := s.locks.Lock(userLockKey(user.ID))
	defer unlock()

	var blobKeys []string
	err = s.tx.InTx(ctx, func(r repository.Repositories) error {
		keys, err := deleteUser(ctx, r, user.ID)
		blobKeys = keys
		return err
	})
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			err = models.NewUserNotFoundError(username)
		}
		span.SetError(err)
		return err
	}

	cache.InvalidateUser(ctx, user.ID, user.Username)
	releaseBlobs(ctx, s.blobs, blobKeys...)
	observability.GlobalLogger.InfoContext(ctx, "user deleted",
		"user_id", user.ID,
		"released_blobs", len(blobKeys),
	)
	return nil
}

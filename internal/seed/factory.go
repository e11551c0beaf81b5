// Package seed creates demo and fixture data. Everything is written through
// the services, so seeded data obeys the same rules as user traffic.
// These helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"kinship/internal/middleware"
	"kinship/internal/models"
	"kinship/internal/service"

	"github.com/brianvoe/gofakeit/v6"
)

// DefaultPassword is the password of every generated user.
const DefaultPassword = "password123"

// Options configures Populate.
type Options struct {
	Users int
	Posts int
	// FollowsPerUser is how many other users each user follows.
	FollowsPerUser int
	// CommentsPerPost is the maximum number of comments per post.
	CommentsPerPost int
	// RepliesPerComment is the maximum number of replies per comment.
	RepliesPerComment int
}

// Summary counts what Populate created.
type Summary struct {
	Users     int
	Posts     int
	Comments  int
	Replies   int
	Relations int
}

// Factory builds domain entities with fake content.
type Factory struct {
	users    *service.UserService
	posts    *service.PostService
	comments *service.CommentService
	replies  *service.ReplyService
	ledger   *service.Ledger
	faker    *gofakeit.Faker
	seq      int
}

// NewFactory creates a Factory over d. The same seed yields the same content.
func NewFactory(d service.Deps, seed int64) *Factory {
	return &Factory{
		users:    service.NewUserService(d),
		posts:    service.NewPostService(d),
		comments: service.NewCommentService(d),
		replies:  service.NewReplyService(d),
		ledger:   service.NewLedger(d),
		faker:    gofakeit.New(seed),
	}
}

// username returns a fake username that is unique for this factory.
func (f *Factory) username() string {
	f.seq++
	base := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToLower(r)
		}
		return -1
	}, f.faker.Username())
	if base == "" {
		base = "user"
	}
	if len(base) > 40 {
		base = base[:40]
	}
	return fmt.Sprintf("%s%d", base, f.seq)
}

// CreateUser creates a user with a fake username, bio and picture URL.
func (f *Factory) CreateUser(ctx context.Context) (*models.User, error) {
	name := f.username()
	user, err := f.users.Create(ctx, service.CreateUserInput{
		Username: name,
		Email:    name + "@example.com",
		Password: DefaultPassword,
	})
	if err != nil {
		return nil, err
	}
	bio := f.faker.Sentence(10)
	return f.users.UpdateProfile(ctx, service.UpdateProfileInput{
		UserID:   user.ID,
		Bio:      &bio,
		ImageURL: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
	})
}

// CreatePost creates a post by author. Roughly half the posts carry an image URL.
func (f *Factory) CreatePost(ctx context.Context, author *models.User) (*models.Post, error) {
	in := service.CreatePostInput{
		ActorID:     author.ID,
		Description: f.faker.Paragraph(1, 3, 8, " "),
	}
	if f.faker.Bool() {
		in.ImageURL = fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.faker.UUID())
	}
	return f.posts.CreatePost(ctx, in)
}

// Populate fills the database with opts.Users users and opts.Posts posts,
// then links them with follows, comments, replies, likes and saves.
func (f *Factory) Populate(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Users <= 0 {
		return nil, fmt.Errorf("at least one user is required")
	}
	sum := &Summary{}

	users := make([]*models.User, 0, opts.Users)
	for i := 0; i < opts.Users; i++ {
		user, err := f.CreateUser(ctx)
		if err != nil {
			return sum, fmt.Errorf("create user: %w", err)
		}
		users = append(users, user)
		sum.Users++
	}

	// Following the next k users in a ring never toggles a pair twice.
	follows := min(opts.FollowsPerUser, len(users)-1)
	for i, actor := range users {
		for k := 1; k <= follows; k++ {
			target := users[(i+k)%len(users)]
			if err := f.relate(ctx, models.RelationFollow, actor.ID, target.ID); err != nil {
				return sum, err
			}
			sum.Relations++
		}
	}

	for i := 0; i < opts.Posts; i++ {
		author := users[f.faker.Number(0, len(users)-1)]
		post, err := f.CreatePost(ctx, author)
		if err != nil {
			return sum, fmt.Errorf("create post: %w", err)
		}
		sum.Posts++

		if err := f.engage(ctx, users, post, sum, opts); err != nil {
			return sum, err
		}
	}

	middleware.Logger.InfoContext(ctx, "seed complete",
		slog.Int("users", sum.Users),
		slog.Int("posts", sum.Posts),
		slog.Int("comments", sum.Comments),
		slog.Int("replies", sum.Replies),
		slog.Int("relations", sum.Relations),
	)
	return sum, nil
}

// engage adds comments, replies, likes and saves to post. Every user acts on
// a given target at most once.
func (f *Factory) engage(ctx context.Context, users []*models.User, post *models.Post, sum *Summary, opts Options) error {
	for _, u := range users {
		if f.faker.Number(0, 2) == 0 {
			if err := f.relate(ctx, models.RelationPostLike, u.ID, post.ID); err != nil {
				return err
			}
			sum.Relations++
		}
		if f.faker.Number(0, 5) == 0 {
			if err := f.relate(ctx, models.RelationPostSave, u.ID, post.ID); err != nil {
				return err
			}
			sum.Relations++
		}
	}

	for c := f.faker.Number(0, opts.CommentsPerPost); c > 0; c-- {
		author := users[f.faker.Number(0, len(users)-1)]
		comment, err := f.comments.CreateComment(ctx, service.CreateCommentInput{
			ActorID: author.ID,
			PostID:  post.ID,
			Content: f.faker.Sentence(12),
		})
		if err != nil {
			return fmt.Errorf("create comment: %w", err)
		}
		sum.Comments++

		for r := f.faker.Number(0, opts.RepliesPerComment); r > 0; r-- {
			replier := users[f.faker.Number(0, len(users)-1)]
			if _, err := f.replies.CreateReply(ctx, service.CreateReplyInput{
				ActorID:   replier.ID,
				CommentID: comment.ID,
				Content:   f.faker.Sentence(8),
			}); err != nil {
				return fmt.Errorf("create reply: %w", err)
			}
			sum.Replies++
		}
	}
	return nil
}

// relate makes sure actor holds a relation of kind with target.
func (f *Factory) relate(ctx context.Context, kind models.RelationKind, actorID, targetID uint) error {
	present, err := f.ledger.IsRelated(ctx, kind, actorID, targetID)
	if err != nil {
		return err
	}
	if present {
		return nil
	}
	if _, err := f.ledger.Toggle(ctx, service.ToggleInput{Kind: kind, ActorID: actorID, TargetID: targetID}); err != nil {
		return fmt.Errorf("%s %d->%d: %w", kind, actorID, targetID, err)
	}
	return nil
}

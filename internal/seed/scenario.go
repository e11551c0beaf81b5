package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"kinship/internal/models"
	"kinship/internal/service"

	"gopkg.in/yaml.v3"
)

// Scenario is a hand-written fixture: named users and keyed content linked by
// relations. Keys are local to the file.
//
//	users:
//	  - username: alice
//	posts:
//	  - key: p1
//	    author: bob
//	    description: first
//	relations:
//	  - kind: follow
//	    actor: alice
//	    target: bob
type Scenario struct {
	Users     []ScenarioUser     `yaml:"users"`
	Posts     []ScenarioPost     `yaml:"posts"`
	Comments  []ScenarioComment  `yaml:"comments"`
	Replies   []ScenarioReply    `yaml:"replies"`
	Relations []ScenarioRelation `yaml:"relations"`
}

type ScenarioUser struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Bio      string `yaml:"bio"`
}

type ScenarioPost struct {
	Key         string `yaml:"key"`
	Author      string `yaml:"author"`
	Description string `yaml:"description"`
	ImageURL    string `yaml:"image_url"`
}

type ScenarioComment struct {
	Key     string `yaml:"key"`
	Post    string `yaml:"post"`
	Author  string `yaml:"author"`
	Content string `yaml:"content"`
}

type ScenarioReply struct {
	Key     string `yaml:"key"`
	Comment string `yaml:"comment"`
	Author  string `yaml:"author"`
	Content string `yaml:"content"`
}

// ScenarioRelation names its target by username for follows and by key for
// everything else.
type ScenarioRelation struct {
	Kind   models.RelationKind `yaml:"kind"`
	Actor  string              `yaml:"actor"`
	Target string              `yaml:"target"`
}

// ScenarioResult maps scenario names to the ids they were created with.
type ScenarioResult struct {
	Users    map[string]uint
	Posts    map[string]uint
	Comments map[string]uint
	Replies  map[string]uint
}

// LoadScenario decodes a YAML scenario. Unknown fields are rejected.
func LoadScenario(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("scenario is empty")
		}
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadScenarioFile reads and decodes the scenario at path.
func LoadScenarioFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return LoadScenario(f)
}

// Validate checks that every reference resolves within the scenario.
func (sc *Scenario) Validate() error {
	users := map[string]bool{}
	for _, u := range sc.Users {
		if u.Username == "" {
			return fmt.Errorf("user without username")
		}
		if users[u.Username] {
			return fmt.Errorf("duplicate user %q", u.Username)
		}
		users[u.Username] = true
	}

	posts, err := keySet("post", len(sc.Posts), func(i int) (string, string) { return sc.Posts[i].Key, sc.Posts[i].Author }, users)
	if err != nil {
		return err
	}
	comments, err := keySet("comment", len(sc.Comments), func(i int) (string, string) { return sc.Comments[i].Key, sc.Comments[i].Author }, users)
	if err != nil {
		return err
	}
	replies, err := keySet("reply", len(sc.Replies), func(i int) (string, string) { return sc.Replies[i].Key, sc.Replies[i].Author }, users)
	if err != nil {
		return err
	}

	for _, c := range sc.Comments {
		if !posts[c.Post] {
			return fmt.Errorf("comment %q: unknown post %q", c.Key, c.Post)
		}
	}
	for _, r := range sc.Replies {
		if !comments[r.Comment] {
			return fmt.Errorf("reply %q: unknown comment %q", r.Key, r.Comment)
		}
	}

	for _, rel := range sc.Relations {
		if !rel.Kind.Valid() {
			return fmt.Errorf("unknown relation kind %q", rel.Kind)
		}
		if !users[rel.Actor] {
			return fmt.Errorf("%s: unknown actor %q", rel.Kind, rel.Actor)
		}
		var known map[string]bool
		switch rel.Kind.TargetTable() {
		case models.TableUsers:
			known = users
		case models.TablePosts:
			known = posts
		case models.TableComments:
			known = comments
		case models.TableReplies:
			known = replies
		}
		if !known[rel.Target] {
			return fmt.Errorf("%s: unknown target %q", rel.Kind, rel.Target)
		}
	}
	return nil
}

func keySet(what string, n int, at func(int) (key, author string), users map[string]bool) (map[string]bool, error) {
	keys := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		key, author := at(i)
		if key == "" {
			return nil, fmt.Errorf("%s without key", what)
		}
		if keys[key] {
			return nil, fmt.Errorf("duplicate %s key %q", what, key)
		}
		if !users[author] {
			return nil, fmt.Errorf("%s %q: unknown author %q", what, key, author)
		}
		keys[key] = true
	}
	return keys, nil
}

// ApplyScenario creates everything sc describes, in file order. Relations
// that already exist are left as they are.
func (f *Factory) ApplyScenario(ctx context.Context, sc *Scenario) (*ScenarioResult, error) {
	res := &ScenarioResult{
		Users:    map[string]uint{},
		Posts:    map[string]uint{},
		Comments: map[string]uint{},
		Replies:  map[string]uint{},
	}

	for _, u := range sc.Users {
		email := u.Email
		if email == "" {
			email = u.Username + "@example.com"
		}
		password := u.Password
		if password == "" {
			password = DefaultPassword
		}
		user, err := f.users.Create(ctx, service.CreateUserInput{Username: u.Username, Email: email, Password: password})
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", u.Username, err)
		}
		if u.Bio != "" {
			bio := u.Bio
			if _, err := f.users.UpdateProfile(ctx, service.UpdateProfileInput{UserID: user.ID, Bio: &bio}); err != nil {
				return nil, fmt.Errorf("user %q: %w", u.Username, err)
			}
		}
		res.Users[u.Username] = user.ID
	}

	for _, p := range sc.Posts {
		post, err := f.posts.CreatePost(ctx, service.CreatePostInput{
			ActorID:     res.Users[p.Author],
			Description: p.Description,
			ImageURL:    p.ImageURL,
		})
		if err != nil {
			return nil, fmt.Errorf("post %q: %w", p.Key, err)
		}
		res.Posts[p.Key] = post.ID
	}

	for _, c := range sc.Comments {
		comment, err := f.comments.CreateComment(ctx, service.CreateCommentInput{
			ActorID: res.Users[c.Author],
			PostID:  res.Posts[c.Post],
			Content: c.Content,
		})
		if err != nil {
			return nil, fmt.Errorf("comment %q: %w", c.Key, err)
		}
		res.Comments[c.Key] = comment.ID
	}

	for _, r := range sc.Replies {
		reply, err := f.replies.CreateReply(ctx, service.CreateReplyInput{
			ActorID:   res.Users[r.Author],
			CommentID: res.Comments[r.Comment],
			Content:   r.Content,
		})
		if err != nil {
			return nil, fmt.Errorf("reply %q: %w", r.Key, err)
		}
		res.Replies[r.Key] = reply.ID
	}

	for _, rel := range sc.Relations {
		if err := f.relate(ctx, rel.Kind, res.Users[rel.Actor], res.targetID(rel)); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r *ScenarioResult) targetID(rel ScenarioRelation) uint {
	switch rel.Kind.TargetTable() {
	case models.TableUsers:
		return r.Users[rel.Target]
	case models.TablePosts:
		return r.Posts[rel.Target]
	case models.TableComments:
		return r.Comments[rel.Target]
	default:
		return r.Replies[rel.Target]
	}
}

package models

import "time"

// RelationKind identifies one of the toggleable binary relations.
type RelationKind string

const (
	// RelationFollow links a user to another user.
	RelationFollow RelationKind = "follow"
	// RelationPostLike links a user to a liked post.
	RelationPostLike RelationKind = "post_like"
	// RelationCommentLike links a user to a liked comment.
	RelationCommentLike RelationKind = "comment_like"
	// RelationReplyLike links a user to a liked reply.
	RelationReplyLike RelationKind = "reply_like"
	// RelationPostSave links a user to a saved post.
	RelationPostSave RelationKind = "post_save"
)

// RelationKinds lists every supported kind.
var RelationKinds = []RelationKind{
	RelationFollow,
	RelationPostLike,
	RelationCommentLike,
	RelationReplyLike,
	RelationPostSave,
}

// Target tables referenced by relation kinds.
const (
	TableUsers    = "users"
	TablePosts    = "posts"
	TableComments = "comments"
	TableReplies  = "replies"
)

// Valid reports whether k is a known relation kind.
func (k RelationKind) Valid() bool {
	return k.TargetTable() != ""
}

// TargetTable returns the table holding the targets of k.
func (k RelationKind) TargetTable() string {
	switch k {
	case RelationFollow:
		return TableUsers
	case RelationPostLike, RelationPostSave:
		return TablePosts
	case RelationCommentLike:
		return TableComments
	case RelationReplyLike:
		return TableReplies
	default:
		return ""
	}
}

// TargetResource returns the human-readable resource name of k's targets.
func (k RelationKind) TargetResource() string {
	switch k.TargetTable() {
	case TableUsers:
		return "User"
	case TablePosts:
		return "Post"
	case TableComments:
		return "Comment"
	case TableReplies:
		return "Reply"
	default:
		return "Target"
	}
}

// KindsTargeting returns the relation kinds whose targets live in table.
func KindsTargeting(table string) []RelationKind {
	var kinds []RelationKind
	for _, k := range RelationKinds {
		if k.TargetTable() == table {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Relation is one live row of a toggleable relation. (Kind, ActorID, TargetID)
// is unique.
type Relation struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	Kind      RelationKind `gorm:"type:varchar(20);not null;uniqueIndex:idx_relations_key,priority:1;index:idx_relations_target,priority:1" json:"kind"`
	ActorID   uint         `gorm:"not null;uniqueIndex:idx_relations_key,priority:2;index" json:"actor_id"`
	TargetID  uint         `gorm:"not null;uniqueIndex:idx_relations_key,priority:3;index:idx_relations_target,priority:2" json:"target_id"`
	CreatedAt time.Time    `json:"created_at"`
}

// RelationState is the state a toggle leaves a relation pair in.
type RelationState string

const (
	// RelationAbsent means no row exists for the pair.
	RelationAbsent RelationState = "absent"
	// RelationPresent means exactly one row exists for the pair.
	RelationPresent RelationState = "present"
)

// Present reports whether the state is RelationPresent.
func (s RelationState) Present() bool {
	return s == RelationPresent
}

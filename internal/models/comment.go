package models

import "time"

// Comment is a top-level response to a post.
type Comment struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	UserID  uint   `gorm:"not null;index" json:"user_id"`
	PostID  uint   `gorm:"not null;index" json:"post_id"`
	Content string `gorm:"type:text;not null" json:"content"`
	// Username of the author, resolved at query time
	Username string `gorm:"->;-:migration" json:"username"`
	// LikesCount is not persisted; computed at query time
	LikesCount int64 `gorm:"->;-:migration" json:"likes_count"`
	// RepliesCount is not persisted; computed at query time
	RepliesCount int64     `gorm:"->;-:migration" json:"replies_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Reply is a response to a comment.
type Reply struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	UserID    uint   `gorm:"not null;index" json:"user_id"`
	CommentID uint   `gorm:"not null;index" json:"comment_id"`
	Content   string `gorm:"type:text;not null" json:"content"`
	// Username of the author, resolved at query time
	Username string `gorm:"->;-:migration" json:"username"`
	// LikesCount is not persisted; computed at query time
	LikesCount int64     `gorm:"->;-:migration" json:"likes_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

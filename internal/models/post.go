package models

import (
	"strconv"
	"time"
)

// Post represents a post in the Kinship application.
type Post struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	UserID      uint   `gorm:"not null;index" json:"user_id"`
	Description string `gorm:"type:text" json:"description"`
	ImageFields `gorm:"embedded"`
	// Username of the owner, resolved at query time
	Username string `gorm:"->;-:migration" json:"username"`
	// LikesCount is not persisted; computed at query time
	LikesCount int64 `gorm:"->;-:migration" json:"likes_count"`
	// SavesCount is not persisted; computed at query time
	SavesCount int64 `gorm:"->;-:migration" json:"saves_count"`
	// CommentsCount is not persisted; computed at query time
	CommentsCount int64     `gorm:"->;-:migration" json:"comments_count"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PostImagePath returns the byte-serving reference for an uploaded post image.
func PostImagePath(id uint) string {
	return "/api/posts/" + uintString(id) + "/image"
}

func uintString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

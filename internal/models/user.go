// Package models contains data structures for the application's domain models.
package models

import "time"

// User represents an account in the Kinship application.
type User struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Username    string `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email       string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password    string `gorm:"not null" json:"-"`
	Bio         string `gorm:"type:text" json:"bio"`
	ImageFields `gorm:"embedded"`
	// FollowersCount is not persisted; computed at query time
	FollowersCount int64 `gorm:"->;-:migration" json:"followers_count"`
	// FollowingCount is not persisted; computed at query time
	FollowingCount int64     `gorm:"->;-:migration" json:"following_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserImagePath returns the byte-serving reference for an uploaded profile picture.
func UserImagePath(id uint) string {
	return "/api/users/" + uintString(id) + "/image"
}

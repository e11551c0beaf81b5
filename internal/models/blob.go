package models

import "time"

// ImageBlob holds raw image bytes for the database-backed blob store.
type ImageBlob struct {
	Key       string    `gorm:"primaryKey;size:255" json:"key"`
	Data      []byte    `gorm:"not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

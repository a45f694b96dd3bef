package models

import "time"

// ForumRead marks the last time a user saw a whole forum as read. When Cleared
// is set the user declared everything older than it read, regardless of
// per-topic rows.
type ForumRead struct {
	UserID   uint       `gorm:"primaryKey" json:"user_id"`
	ForumID  uint       `gorm:"primaryKey" json:"forum_id"`
	LastRead time.Time  `gorm:"not null" json:"last_read"`
	Cleared  *time.Time `json:"cleared,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TopicRead marks the last time a user read a single topic.
type TopicRead struct {
	UserID   uint      `gorm:"primaryKey" json:"user_id"`
	TopicID  uint      `gorm:"primaryKey" json:"topic_id"`
	LastRead time.Time `gorm:"not null" json:"last_read"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
